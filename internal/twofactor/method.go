package twofactor

import (
	"context"

	"github.com/khanghh/kgate/model"
)

const (
	MethodEmailCode = "EmailCode"
	MethodTotp      = "Totp"
)

// Method issues and checks a second factor for a user that already passed
// the first one.
type Method interface {
	// Challenge starts the second step and returns data for the client.
	Challenge(ctx context.Context, user *model.User) (map[string]any, error)
	// Verify reports whether code is the expected second factor.
	Verify(ctx context.Context, user *model.User, code string) (bool, error)
}

type Registry struct {
	methods map[string]Method
}

func (r *Registry) Register(name string, method Method) {
	r.methods[name] = method
}

func (r *Registry) Get(name string) (Method, error) {
	method, ok := r.methods[name]
	if !ok {
		return nil, ErrMethodNotFound
	}
	return method, nil
}

func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]Method),
	}
}
