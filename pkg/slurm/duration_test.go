package slurm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		secs int
		want string
	}{
		{0, "00"},
		{59, "59"},
		{60, "01:00"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{86399, "23:59:59"},
		{86400, "1-00:00:00"},
	}

	for _, c := range cases {
		got := FormatDuration(time.Duration(c.secs) * time.Second)
		assert.Equal(t, c.want, got, "for %d seconds", c.secs)
	}
}
