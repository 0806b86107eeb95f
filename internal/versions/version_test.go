package versions

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	t.Parallel()

	info := GetVersionInfo()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, BuildDate, info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.True(t, strings.Contains(info.Platform, runtime.GOOS))
}

func TestVersionInfo_IsRelease(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version string
		want    bool
	}{
		{version: "1.2.3", want: true},
		{version: "v1.2.3", want: true},
		{version: "1.2.3-rc.1", want: false},
		{version: "dev", want: false},
		{version: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VersionInfo{Version: tt.version}.IsRelease())
		})
	}
}

func TestVersionInfo_ServiceVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.2.3", VersionInfo{Version: "v1.2.3"}.ServiceVersion())
	assert.Equal(t, "0.4.0-beta.2", VersionInfo{Version: "0.4.0-beta.2"}.ServiceVersion())
	assert.Equal(t, "dev", VersionInfo{Version: "dev"}.ServiceVersion())
}
