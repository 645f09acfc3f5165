package memo

import (
	"context"
	"time"
)

type nullStore struct{}

func newNullStore() Store { return &nullStore{} }

func (s *nullStore) Driver() Driver { return DriverNull }

func (s *nullStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *nullStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *nullStore) Delete(context.Context, string) error { return nil }

func (s *nullStore) GetMany(context.Context, ...string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func (s *nullStore) SetMany(context.Context, map[string][]byte, time.Duration) error {
	return nil
}

func (s *nullStore) Flush(context.Context) error { return nil }
