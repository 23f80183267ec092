package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFsUtils struct {
	executable    string
	executableErr error
	statMap       map[string]os.FileInfo
	statErr       error
	readFileMap   map[string][]byte
	readFileErr   error
	homeDir       string
	homeDirErr    error
	cwd           string
	cwdErr        error
	lookPathMap   map[string]string
	lookPathErr   error
}

func (m *mockFsUtils) Executable() (string, error) { return m.executable, m.executableErr }
func (m *mockFsUtils) Stat(name string) (os.FileInfo, error) {
	if info, ok := m.statMap[name]; ok {
		return info, nil
	}
	return nil, m.statErr
}
func (m *mockFsUtils) ReadFile(name string) ([]byte, error) {
	if content, ok := m.readFileMap[name]; ok {
		return content, nil
	}
	return nil, m.readFileErr
}
func (m *mockFsUtils) UserHomeDir() (string, error) { return m.homeDir, m.homeDirErr }
func (m *mockFsUtils) Getwd() (string, error)       { return m.cwd, m.cwdErr }
func (m *mockFsUtils) LookPath(file string) (string, error) {
	if path, ok := m.lookPathMap[file]; ok {
		return path, nil
	}
	return "", m.lookPathErr
}

const (
	testBinary  = "/usr/local/bin/tracestat"
	testHome    = "/home/testuser"
	testProject = "/home/testuser/project"
)

var geminiSettings = filepath.Join(testProject, ".gemini", "settings.json")

func baseMock() *mockFsUtils {
	return &mockFsUtils{
		executable: testBinary,
		homeDir:    testHome,
		cwd:        testProject,
		statMap: map[string]os.FileInfo{
			testBinary: &mockFileInfo{mode: 0755},
		},
		statErr:     os.ErrNotExist,
		readFileMap: map[string][]byte{},
		readFileErr: os.ErrNotExist,
		lookPathErr: os.ErrNotExist,
	}
}

func withMCPConfig(m *mockFsUtils) *mockFsUtils {
	m.statMap[geminiSettings] = &mockFileInfo{mode: 0644}
	m.readFileMap[geminiSettings] = []byte(`{
		"mcpServers": {
			"tracestat": {
				"command": "/usr/local/bin/tracestat",
				"args": ["serve"]
			}
		}
	}`)
	return m
}

func TestDoctorMissingMCPConfig(t *testing.T) {
	var out bytes.Buffer
	err := runDoctorWithUtils(&out, "test-version", baseMock())

	assert.Error(t, err)
	assert.Contains(t, out.String(), "🔍 tracestat doctor vtest-version")
	assert.Contains(t, out.String(), "✗ MCP config not found")
	assert.Contains(t, out.String(), `"tracestat": {`)
	assert.Contains(t, out.String(), "✓ No tracestat config file, using defaults")
	assert.Contains(t, out.String(), "⚠ Optional: no test data sender found")
	assert.Contains(t, out.String(), "❌ Found 1 issue(s) that need attention")
}

func TestDoctorAllPass(t *testing.T) {
	m := withMCPConfig(baseMock())
	m.lookPathMap = map[string]string{"otel-cli": "/usr/local/bin/otel-cli"}

	var out bytes.Buffer
	err := runDoctorWithUtils(&out, "test-version", m)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Gemini CLI config found: ")
	assert.Contains(t, out.String(), "✓ Optional: otel-cli found at /usr/local/bin/otel-cli")
	assert.Contains(t, out.String(), "✅ All checks passed!")
	assert.Contains(t, out.String(), "tracestat serve --verbose")
}

func TestDoctorMCPEntryMissing(t *testing.T) {
	m := withMCPConfig(baseMock())
	m.readFileMap[geminiSettings] = []byte(`{"mcpServers": {"other": {"command": "x"}}}`)

	result := checkMCPConfig(m)
	assert.Equal(t, statusWarn, result.Status)
	assert.Contains(t, result.Suggestion, "'tracestat' server entry")
}

func TestDoctorMCPEntryWithoutServe(t *testing.T) {
	m := withMCPConfig(baseMock())
	m.readFileMap[geminiSettings] = []byte(`{"mcpServers": {"tracestat": {"command": "/usr/local/bin/tracestat", "args": ["usage"]}}}`)

	result := checkMCPConfig(m)
	assert.Equal(t, statusWarn, result.Status)
	assert.Contains(t, result.Suggestion, "does not run 'serve'")
}

func TestDoctorSendTools(t *testing.T) {
	m := baseMock()
	m.lookPathMap = map[string]string{
		"tracestat-sendtest": "/go/bin/tracestat-sendtest",
		"otel-cli":           "/usr/local/bin/otel-cli",
	}

	result := checkSendTools(m)
	assert.Equal(t, statusPass, result.Status)
	assert.Equal(t, "Optional: tracestat-sendtest found at /go/bin/tracestat-sendtest", result.Message)
}

func TestDoctorTracestatConfig(t *testing.T) {
	projectCfg := filepath.Join(testProject, ".tracestat.json")
	globalCfg := filepath.Join(testHome, ".config", "tracestat", "config.json")

	tests := []struct {
		name    string
		files   map[string]string
		status  checkStatus
		message string
	}{
		{
			name:    "layered",
			files:   map[string]string{globalCfg: `{"org": "acme"}`, projectCfg: `{"projects": [{"id": "1", "slug": "web"}]}`},
			status:  statusPass,
			message: `(org "acme", 1 projects)`,
		},
		{
			name:    "bad json",
			files:   map[string]string{projectCfg: `{"org":`},
			status:  statusFail,
			message: "not valid JSON",
		},
		{
			name:    "bad period",
			files:   map[string]string{projectCfg: `{"stats_period": "soon"}`},
			status:  statusFail,
			message: "tracestat config is invalid",
		},
		{
			name:    "bad transport",
			files:   map[string]string{globalCfg: `{"transport": "ssh"}`},
			status:  statusFail,
			message: "tracestat config is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := baseMock()
			for path, content := range tt.files {
				m.readFileMap[path] = []byte(content)
			}
			result := checkTracestatConfig(m)
			assert.Equal(t, tt.status, result.Status)
			assert.Contains(t, result.Message, tt.message)
		})
	}
}

func TestDoctorBinaryNotExecutable(t *testing.T) {
	m := baseMock()
	m.statMap[testBinary] = &mockFileInfo{mode: 0644}

	result := checkBinary(m)
	assert.Equal(t, statusFail, result.Status)
	assert.Equal(t, "Run: chmod +x "+testBinary, result.Suggestion)
}

// mockFileInfo implements os.FileInfo for testing purposes
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
	sys     interface{}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() interface{}   { return m.sys }
