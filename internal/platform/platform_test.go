package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferMethodString(t *testing.T) {
	tests := []struct {
		want   string
		method TransferMethod
	}{
		{want: "read_write", method: ReadWrite},
		{want: "splice", method: SpliceMove},
		{want: "unknown", method: TransferMethod(42)},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.method.String())
		})
	}
}
