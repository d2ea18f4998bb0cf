package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/mcstage/pkg/version"
)

func TestVersion(t *testing.T) {
	out := bytes.NewBuffer(nil)
	stdout = out
	version.Version = "v1.2.3"

	New().Run(nil, nil)
	assert.Equal(t, "mcstage version: v1.2.3\n", out.String())
}
