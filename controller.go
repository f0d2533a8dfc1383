package relay

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
)

// DefaultAction is resolved when a controller has no action of the requested name.
const DefaultAction = "default"

// Args are named action arguments.
type Args map[string]interface{}

// Params are the arguments an action is invoked with.
type Params struct {
	Positional []interface{}
	Named      Args
}

// Get returns a named argument.
func (p Params) Get(name string) (interface{}, bool) {
	v, ok := p.Named[name]
	return v, ok
}

// String returns a named argument as a string, "" if absent or not a string.
func (p Params) String(name string) string {
	s, _ := p.Named[name].(string)
	return s
}

type Action func(c *Context, p Params) (interface{}, error)

// Controller looks up actions by name.
type Controller interface {
	Action(name string) (Action, bool)
}

// Actions is a Controller backed by an explicit name table.
type Actions map[string]Action

func (a Actions) Action(name string) (Action, bool) {
	action, ok := a[name]
	return action, ok && action != nil
}

var contextType = reflect.TypeOf(&Context{})
var paramsType = reflect.TypeOf(Params{})
var errorType = reflect.TypeOf((*error)(nil)).Elem()
var emptyInterfaceType = reflect.TypeOf((*interface{})(nil)).Elem()

// method indexes of a controller type, keyed by action name
var methodTables sync.Map

// NewController exposes the methods of v that look like
//
//	func(c *Context, p Params) (interface{}, error)
//
// as actions. The method name is converted to snake case, so ShowImage is
// served as "show_image" and Default as "default". The method table is
// computed once per type.
func NewController(v interface{}) (Controller, error) {
	if v == nil {
		return nil, errors.New("controller can not be nil")
	}
	value := reflect.ValueOf(v)
	table := methodTable(value.Type())
	if len(table) == 0 {
		return nil, errors.Errorf("%T has no action methods", v)
	}
	actions := Actions{}
	for name, index := range table {
		fn := value.Method(index).Interface().(func(*Context, Params) (interface{}, error))
		actions[name] = fn
	}
	return actions, nil
}

func methodTable(t reflect.Type) map[string]int {
	if cached, ok := methodTables.Load(t); ok {
		return cached.(map[string]int)
	}
	table := map[string]int{}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if isActionMethod(m.Type) {
			table[ActionName(m.Name)] = i
		}
	}
	methodTables.Store(t, table)
	return table
}

// isActionMethod checks a method type, receiver included.
func isActionMethod(mt reflect.Type) bool {
	return mt.NumIn() == 3 &&
		mt.In(1) == contextType &&
		mt.In(2) == paramsType &&
		mt.NumOut() == 2 &&
		mt.Out(0) == emptyInterfaceType &&
		mt.Out(1) == errorType
}

// ActionName converts a Go method name to its action name.
func ActionName(method string) string {
	var b strings.Builder
	runes := []rune(method)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
