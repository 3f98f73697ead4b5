package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawMessageClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  RawMessage
		want InputType
	}{
		{"body only", RawMessage{Body: "hello"}, InputText},
		{"image only", RawMessage{MediaLocator: "m1", MediaType: "image/jpeg"}, InputImage},
		{"video only", RawMessage{MediaLocator: "m1", MediaType: "video/mp4"}, InputVideo},
		{"body and media", RawMessage{Body: "see attached", MediaLocator: "m1", MediaType: "image/png"}, InputMixed},
		{"whitespace body with media", RawMessage{Body: "  ", MediaLocator: "m1", MediaType: "image/png"}, InputImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.Classify())
		})
	}
}
