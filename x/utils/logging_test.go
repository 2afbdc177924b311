package utils

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/tendermint/tendermint/libs/log"
)

func TestLogDuration(t *testing.T) {
	cases := map[string]struct {
		err      error
		lowPrio  bool
		wantLine string
	}{
		"success is info": {
			wantLine: "I[",
		},
		"low priority success is debug": {
			lowPrio:  true,
			wantLine: "D[",
		},
		"failure is error": {
			err:      errors.Wrap(errors.ErrNotFound, "order"),
			lowPrio:  true,
			wantLine: "E[",
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var buf bytes.Buffer
			ctx := escrowd.WithLogger(context.Background(), log.NewTMLogger(&buf))
			ctx = escrowd.WithRequestID(ctx, "req-1")

			LogDuration(ctx, time.Now(), "round one", tc.err, tc.lowPrio, "order", "o-1")

			out := buf.String()
			if !strings.HasPrefix(out, tc.wantLine) {
				t.Fatalf("want %q line, got %q", tc.wantLine, out)
			}
			for _, want := range []string{"round one", "order=o-1", "request=req-1", "duration="} {
				if !strings.Contains(out, want) {
					t.Errorf("%q not found in %q", want, out)
				}
			}
			if tc.err != nil && !strings.Contains(out, "err=") {
				t.Errorf("error not logged: %q", out)
			}
		})
	}
}
