package postgres

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
)

func TestSettleStatus(t *testing.T) {
	tests := []struct {
		name     string
		affected []int64
		current  []types.SourceStatus
		wantExec int
		wantCode apperr.Code
		wantNil  bool
	}{
		{
			name:     "first write lands",
			affected: []int64{1},
			wantExec: 1,
			wantNil:  true,
		},
		{
			name:     "illegal move is reported without retry",
			affected: []int64{0},
			current:  []types.SourceStatus{types.SourceAnalyzing},
			wantExec: 1,
			wantCode: apperr.CodeConflict,
		},
		{
			name:     "row moved into a legal state then retry lands",
			affected: []int64{0, 1},
			current:  []types.SourceStatus{types.SourceReady},
			wantExec: 2,
			wantNil:  true,
		},
		{
			name:     "row keeps moving",
			affected: []int64{0, 0},
			current:  []types.SourceStatus{types.SourceReady, types.SourceReady},
			wantExec: 2,
			wantCode: apperr.CodeConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var execs, reads int
			exec := func() (int64, error) {
				n := tt.affected[execs]
				execs++
				return n, nil
			}
			current := func() (types.SourceStatus, error) {
				st := tt.current[reads]
				reads++
				return st, nil
			}

			err := settleStatus(uuid.New(), types.SourceAnalyzing, exec, current)
			if execs != tt.wantExec {
				t.Fatalf("expected %d writes, got %d", tt.wantExec, execs)
			}
			if tt.wantNil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !apperr.IsCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestSettleStatus_ReadError(t *testing.T) {
	boom := errors.New("conn closed")
	err := settleStatus(uuid.New(), types.SourceReady,
		func() (int64, error) { return 0, nil },
		func() (types.SourceStatus, error) { return "", boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
