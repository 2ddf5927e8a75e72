package service

import "context"

// Func adapts a plain function to Service.
type Func struct {
	ServiceName string
	Run         func(ctx context.Context) error
}

func (f Func) Name() string                    { return f.ServiceName }
func (f Func) Start(ctx context.Context) error { return f.Run(ctx) }
