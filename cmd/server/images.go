package main

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"gitlab.com/silenteer-oss/relay"
	"gitlab.com/silenteer-oss/relay/metaheaders"
)

const octetStream = "application/octet-stream"

type Image struct {
	ID         string            `json:"id"`
	Name       string            `json:"name" validate:"required,max=255"`
	DiskFormat string            `json:"disk_format,omitempty" validate:"omitempty,oneof=raw qcow2 vmdk iso"`
	Size       int64             `json:"size" validate:"gte=0"`
	IsPublic   bool              `json:"is_public"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Meta is the header form of the image metadata.
func (img *Image) Meta() metaheaders.Meta {
	m := metaheaders.Meta{
		"id":         img.ID,
		"name":       img.Name,
		"size":       img.Size,
		"is_public":  img.IsPublic,
		"created_at": img.CreatedAt,
	}
	if img.DiskFormat != "" {
		m["disk_format"] = img.DiskFormat
	}
	if img.UpdatedAt != nil {
		m["updated_at"] = *img.UpdatedAt
	}
	if len(img.Properties) > 0 {
		props := metaheaders.Meta{}
		for k, v := range img.Properties {
			props[k] = v
		}
		m["properties"] = props
	}
	return m
}

// Apply copies the fields present in m onto img. Server managed fields are
// ignored.
func (img *Image) Apply(m metaheaders.Meta) error {
	for key, value := range m {
		if value == nil {
			continue
		}
		switch key {
		case "name":
			img.Name = fmt.Sprint(value)
		case "disk_format":
			img.DiskFormat = fmt.Sprint(value)
		case "size":
			n, err := toInt(value)
			if err != nil {
				return relay.BadRequest("size: " + err.Error())
			}
			img.Size = n
		case "is_public":
			b, err := toBool(value)
			if err != nil {
				return relay.BadRequest("is_public: " + err.Error())
			}
			img.IsPublic = b
		case "properties":
			props, ok := value.(metaheaders.Meta)
			if !ok {
				raw, isMap := value.(map[string]interface{})
				if !isMap {
					return relay.BadRequest("properties must be a mapping")
				}
				props = raw
			}
			if img.Properties == nil {
				img.Properties = map[string]string{}
			}
			for k, v := range props {
				if v == nil {
					delete(img.Properties, k)
					continue
				}
				img.Properties[k] = fmt.Sprint(v)
			}
		}
	}
	return nil
}

func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, errors.Errorf("not a number: %v", v)
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	}
	return false, errors.Errorf("not a boolean: %v", v)
}

type imageStore struct {
	mu     sync.RWMutex
	images map[string]*Image
	data   map[string][]byte
}

func newImageStore() *imageStore {
	return &imageStore{images: map[string]*Image{}, data: map[string][]byte{}}
}

func (s *imageStore) List() []Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, *img)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *imageStore) Get(id string) (Image, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	if !ok {
		return Image{}, nil, false
	}
	return *img, s.data[id], true
}

func (s *imageStore) Put(img Image, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ID] = &img
	if data != nil {
		s.data[img.ID] = data
	}
}

func (s *imageStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[id]; !ok {
		return false
	}
	delete(s.images, id)
	delete(s.data, id)
	return true
}

// imageResult carries an image and its data to the serializers.
type imageResult struct {
	Image Image
	Data  []byte
}

// ImagesController serves the image collection.
type ImagesController struct {
	store    *imageStore
	validate *validator.Validate
	now      func() time.Time
}

func NewImagesController(store *imageStore) *ImagesController {
	return &ImagesController{store: store, validate: validator.New(), now: time.Now}
}

func (ic *ImagesController) Index(c *relay.Context, p relay.Params) (interface{}, error) {
	return map[string]interface{}{"images": ic.store.List()}, nil
}

func (ic *ImagesController) Show(c *relay.Context, p relay.Params) (interface{}, error) {
	id := p.String("id")
	img, data, ok := ic.store.Get(id)
	if !ok {
		return nil, relay.NotFound(fmt.Sprintf("Image %s not found", id))
	}
	return &imageResult{Image: img, Data: data}, nil
}

func (ic *ImagesController) Meta(c *relay.Context, p relay.Params) (interface{}, error) {
	return ic.Show(c, p)
}

func (ic *ImagesController) Create(c *relay.Context, p relay.Params) (interface{}, error) {
	incoming, _ := p.Named["meta"].(metaheaders.Meta)
	data, _ := p.Named["data"].([]byte)

	img := Image{}
	if err := img.Apply(incoming); err != nil {
		return nil, err
	}
	if data != nil {
		img.Size = int64(len(data))
	}
	if err := ic.validate.Struct(&img); err != nil {
		return nil, relay.BadRequest(err.Error())
	}
	img.ID = uuid.New().String()
	img.CreatedAt = ic.now().UTC().Truncate(time.Second)
	ic.store.Put(img, data)

	c.Logger().Info("image created", map[string]interface{}{"image": img.ID})
	return map[string]interface{}{"image": img}, nil
}

func (ic *ImagesController) Update(c *relay.Context, p relay.Params) (interface{}, error) {
	id := p.String("id")
	img, _, ok := ic.store.Get(id)
	if !ok {
		return nil, relay.NotFound(fmt.Sprintf("Image %s not found", id))
	}
	incoming, _ := p.Named["meta"].(metaheaders.Meta)
	data, _ := p.Named["data"].([]byte)

	if err := img.Apply(incoming); err != nil {
		return nil, err
	}
	if data != nil {
		img.Size = int64(len(data))
	}
	if err := ic.validate.Struct(&img); err != nil {
		return nil, relay.BadRequest(err.Error())
	}
	updated := ic.now().UTC().Truncate(time.Second)
	img.UpdatedAt = &updated
	ic.store.Put(img, data)
	return map[string]interface{}{"image": img}, nil
}

func (ic *ImagesController) Delete(c *relay.Context, p relay.Params) (interface{}, error) {
	id := p.String("id")
	if !ic.store.Delete(id) {
		return nil, relay.NotFound(fmt.Sprintf("Image %s not found", id))
	}
	return relay.NewResBuilder().StatusCode(http.StatusNoContent).Body(nil).Build(), nil
}

// deserializeImage reads image metadata from a JSON body {"image": {...}}
// or, for binary uploads, from x-image-meta headers with the data as body.
func deserializeImage(r *relay.Request) (relay.Args, error) {
	ct := r.Headers.Get("Content-Type")
	if !relay.HasBody(r) || strings.HasPrefix(ct, octetStream) {
		meta, err := metaheaders.Decode(r.Headers)
		if err != nil {
			return nil, relay.BadRequest(err.Error())
		}
		args := relay.Args{"meta": meta}
		if relay.HasBody(r) {
			data, err := r.ReadBody()
			if err != nil {
				return nil, err
			}
			args["data"] = data
		}
		return args, nil
	}

	if _, err := r.ContentType("application/json"); err != nil {
		return nil, err
	}
	body, err := r.ReadBody()
	if err != nil {
		return nil, err
	}
	doc, err := relay.FromJSON(string(body))
	if err != nil {
		return nil, err
	}
	wrapper, _ := doc.(map[string]interface{})
	image, ok := wrapper["image"].(map[string]interface{})
	if !ok {
		return nil, relay.BadRequest("request body must be an object with an image key")
	}
	return relay.Args{"meta": metaheaders.Meta(image)}, nil
}

// serializeImage answers with the metadata in headers and the data as body.
func serializeImage(withData bool) relay.SerializeFunc {
	return func(rp *relay.Response, result interface{}) error {
		res, ok := result.(*imageResult)
		if !ok {
			return errors.Errorf("unexpected image result %T", result)
		}
		h, err := metaheaders.Encode(res.Image.Meta())
		if err != nil {
			return err
		}
		for name, values := range h {
			rp.Headers[name] = values
		}
		rp.StatusCode = http.StatusOK
		rp.SetContentType(octetStream)
		if withData {
			rp.Body = res.Data
		}
		return nil
	}
}

func serializeCreated(rp *relay.Response, result interface{}) error {
	if err := (&relay.JSONResponseSerializer{}).Default(rp, result); err != nil {
		return err
	}
	rp.StatusCode = http.StatusCreated
	return nil
}

// RegisterImages routes the image collection onto m.
func RegisterImages(m *relay.Mapper, store *imageStore) error {
	ctrl, err := relay.NewController(NewImagesController(store))
	if err != nil {
		return err
	}
	res := relay.NewResource(ctrl,
		&relay.JSONResponseSerializer{Actions: map[string]relay.SerializeFunc{
			"show":   serializeImage(true),
			"meta":   serializeImage(false),
			"create": serializeCreated,
		}},
		&relay.JSONRequestDeserializer{Actions: map[string]relay.DeserializeFunc{
			"create": deserializeImage,
			"update": deserializeImage,
		}},
	)
	m.Collection("images", res)
	return nil
}
