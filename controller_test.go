package relay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/silenteer-oss/relay"
)

type imageController struct {
	prefix string
}

func (ic *imageController) Index(c *relay.Context, p relay.Params) (interface{}, error) {
	return ic.prefix + "index", nil
}

func (ic *imageController) ShowImage(c *relay.Context, p relay.Params) (interface{}, error) {
	return ic.prefix + p.String("id"), nil
}

func (ic *imageController) Default(c *relay.Context, p relay.Params) (interface{}, error) {
	return ic.prefix + "default", nil
}

// not an action: wrong signature
func (ic *imageController) Prefix() string {
	return ic.prefix
}

type noActions struct{}

func (noActions) Name() string { return "none" }

func TestNewController(t *testing.T) {
	ctrl, err := relay.NewController(&imageController{prefix: "img:"})
	require.NoError(t, err)

	for _, name := range []string{"index", "show_image", "default"} {
		_, ok := ctrl.Action(name)
		assert.True(t, ok, name)
	}
	_, ok := ctrl.Action("prefix")
	assert.False(t, ok)

	result, err := relay.Dispatch(relay.NewBackgroundContext(), ctrl, "show_image", relay.Args{"id": "12"})
	require.NoError(t, err)
	assert.Equal(t, "img:12", result)

	result, err = relay.Dispatch(relay.NewBackgroundContext(), ctrl, "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, "img:default", result)
}

func TestNewControllerBindsReceiver(t *testing.T) {
	a, err := relay.NewController(&imageController{prefix: "a:"})
	require.NoError(t, err)
	b, err := relay.NewController(&imageController{prefix: "b:"})
	require.NoError(t, err)

	ra, _ := relay.Dispatch(relay.NewBackgroundContext(), a, "index", nil)
	rb, _ := relay.Dispatch(relay.NewBackgroundContext(), b, "index", nil)
	assert.Equal(t, "a:index", ra)
	assert.Equal(t, "b:index", rb)
}

func TestNewControllerWithoutActions(t *testing.T) {
	_, err := relay.NewController(noActions{})
	assert.Error(t, err)

	_, err = relay.NewController(nil)
	assert.Error(t, err)
}

func TestActionName(t *testing.T) {
	tests := map[string]string{
		"Index":     "index",
		"ShowImage": "show_image",
		"HTTPGet":   "http_get",
		"GetByID":   "get_by_id",
		"Default":   "default",
	}
	for method, want := range tests {
		assert.Equal(t, want, relay.ActionName(method), method)
	}
}

func TestActionsIgnoresNilEntries(t *testing.T) {
	ctrl := relay.Actions{"index": nil}
	_, ok := ctrl.Action("index")
	assert.False(t, ok)
}
