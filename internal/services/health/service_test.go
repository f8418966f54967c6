package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func TestCheck(t *testing.T) {
	cases := []struct {
		name string
		svc  *Service
		want Status
	}{
		{"memory", NewService(nil), Status{OK: true, Database: "memory"}},
		{"ok", NewService(fakePinger{}), Status{OK: true, Database: "ok"}},
		{"down", NewService(fakePinger{err: errors.New("refused")}), Status{OK: false, Database: "unreachable"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.svc.Check(context.Background()); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
