package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostPorts(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []string
		wantErr string
	}{
		{name: "nil", input: nil, want: []string{}},
		{name: "trims and keeps order", input: []string{" b:9092", "a:9092 "}, want: []string{"b:9092", "a:9092"}},
		{name: "drops empty and repeated", input: []string{"a:9092", "", "  ", "a:9092", "b:9093"}, want: []string{"a:9092", "b:9093"}},
		{name: "ipv6 broker", input: []string{"[::1]:9092"}, want: []string{"[::1]:9092"}},
		{name: "missing port", input: []string{"kafka"}, wantErr: `address "kafka"`},
		{name: "missing host", input: []string{":9092"}, wantErr: "missing host"},
		{name: "non numeric port", input: []string{"kafka:abc"}, wantErr: "invalid port"},
		{name: "port out of range", input: []string{"kafka:70000"}, wantErr: "invalid port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HostPorts(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
