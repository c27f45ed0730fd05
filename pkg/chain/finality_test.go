package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

func TestParseFinality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Finality
		wantTag rpc.BlockNumber
		wantErr bool
	}{
		{input: "finalized", want: FinalityFinalized, wantTag: rpc.FinalizedBlockNumber},
		{input: "safe", want: FinalitySafe, wantTag: rpc.SafeBlockNumber},
		{input: "latest", want: FinalityLatest, wantTag: rpc.LatestBlockNumber},
		{input: "pending", wantErr: true},
		{input: "Finalized", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFinality(tt.input)
			if tt.wantErr {
				require.ErrorContains(t, err, "invalid block finality")
				require.False(t, Finality(tt.input).IsValid())
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.input, got.String())
			require.Equal(t, tt.wantTag, got.HeadTag())
		})
	}
}

func TestFinality_ReadableHead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		finality Finality
		tagHead  uint64
		lag      uint64
		want     uint64
	}{
		{name: "finalized ignores lag", finality: FinalityFinalized, tagHead: 100, lag: 10, want: 100},
		{name: "safe ignores lag", finality: FinalitySafe, tagHead: 100, lag: 10, want: 100},
		{name: "latest minus lag", finality: FinalityLatest, tagHead: 100, lag: 10, want: 90},
		{name: "latest without lag", finality: FinalityLatest, tagHead: 100, want: 100},
		{name: "lag above head", finality: FinalityLatest, tagHead: 5, lag: 10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.finality.ReadableHead(tt.tagHead, tt.lag))
		})
	}
}
