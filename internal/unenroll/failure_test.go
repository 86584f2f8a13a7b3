package unenroll

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "vanished enrollment",
			err:      fmt.Errorf("unenroll: %w", ErrEnrollmentNotFound),
			wantCode: "MUT001",
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
			wantCode: "DB004",
		},
		{
			name:     "connection reset",
			err:      errors.New("read: connection reset by peer"),
			wantCode: "DB005",
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("update enrollment: %w", context.DeadlineExceeded),
			wantCode: "DB006",
		},
		{
			name:     "timeout in message",
			err:      errors.New("i/o timeout"),
			wantCode: "DB006",
		},
		{
			name:     "deadlock",
			err:      errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"),
			wantCode: "DB007",
		},
		{
			name:     "serialization failure",
			err:      errors.New("ERROR: could not serialize access due to concurrent update"),
			wantCode: "DB007",
		},
		{
			name:     "sqlite busy",
			err:      errors.New("database is locked (5) (SQLITE_BUSY)"),
			wantCode: "DB008",
		},
		{
			name:     "cancelled",
			err:      fmt.Errorf("begin: %w", context.Canceled),
			wantCode: "RUN001",
		},
		{
			name:     "panic",
			err:      fmt.Errorf("%w: boom", errPanicked),
			wantCode: "RUN002",
		},
		{
			name:     "unknown error",
			err:      errors.New("something strange"),
			wantCode: "ERR000",
		},
		{
			name:     "case insensitive",
			err:      errors.New("CONNECTION REFUSED"),
			wantCode: "DB004",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFailure(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("ClassifyFailure(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Errorf("ClassifyFailure(%v).Message is empty", tt.err)
			}
		})
	}
}
