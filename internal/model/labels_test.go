package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		file      string
		data      string
		want      []string
		imageSize int
		wantErr   bool
	}{
		{name: "indexed text", file: "labels.txt", data: "0 Messy Desk\r\n1 Clean Desk\n\n", want: []string{"Messy Desk", "Clean Desk"}},
		{name: "plain text", file: "labels.txt", data: "cat\ndog\n", want: []string{"cat", "dog"}},
		{name: "numeric label kept", file: "labels.txt", data: "42\n7 up\n", want: []string{"42", "up"}},
		{name: "metadata labels", file: "metadata.json", data: `{"labels":["A","B"],"imageSize":224}`, want: []string{"A", "B"}, imageSize: 224},
		{name: "metadata classes", file: "metadata.json", data: `{"classes":["x","y","z"]}`, want: []string{"x", "y", "z"}},
		{name: "empty text", file: "labels.txt", data: "\n\n", wantErr: true},
		{name: "bad json", file: "metadata.json", data: `{"labels":`, wantErr: true},
		{name: "blank label", file: "metadata.json", data: `{"labels":["A"," "]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			set, err := parseLabels(tt.file, []byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.labels)
			assert.Equal(t, tt.imageSize, set.imageSize)
		})
	}
}
