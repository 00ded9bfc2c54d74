package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuns(t *testing.T) {
	req, err := parseRuns([]string{"mon.a=ceph -s", "mon.a=ceph df", "client.0=rados df"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ceph -s", "ceph df"}, req.Commands["mon.a"])
	assert.Equal(t, []string{"rados df"}, req.Commands["client.0"])

	for _, bad := range []string{"mon.a", "=ceph -s", "mon.a="} {
		_, err := parseRuns([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestDecodeSpecs(t *testing.T) {
	specs, err := decodeSpecs([]byte(`service_type: rgw
service_id: foo
placement:
  count: 2
---
service_type: nfs
service_id: bar
---
`))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "rgw", specs[0]["service_type"])
	assert.Equal(t, "bar", specs[1]["service_id"])

	_, err = decodeSpecs([]byte("---\n"))
	assert.Error(t, err)

	_, err = decodeSpecs([]byte("service_type: [unclosed"))
	assert.Error(t, err)
}
