package plugin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"httprpc/internal/client"
	"httprpc/internal/discovery"
	"httprpc/internal/protocol"
	"httprpc/internal/registry"
	"httprpc/internal/scope"
	"httprpc/internal/trace"
)

func writePlugins(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func loadRegistry(t *testing.T, files map[string]string) (*Manager, *registry.Registry) {
	t.Helper()
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.LoadFromDirectory(writePlugins(t, files)))
	reg := registry.New(0, zerolog.Nop())
	m.Register(reg)
	return m, reg
}

func runJobs(t *testing.T, h registry.Handler, body string, sc *scope.Scope) ([]*protocol.Job, []error) {
	t.Helper()
	jobs, err := protocol.ParseRequest([]byte(body))
	require.NoError(t, err)

	var errs []error
	for _, b := range h.Batches(jobs) {
		errs = append(errs, b.Execute(context.Background(), sc))
	}
	return jobs, errs
}

func TestManager_DirectPlugin(t *testing.T) {
	m, reg := loadRegistry(t, map[string]string{
		"double.js":      "// @method double\nfunction execute(n) { scope.read('numbers'); return n * 2; }\n",
		"notes.txt":      "ignored",
		"nodirective.js": "function execute() { return 1; }\n",
	})
	assert.Equal(t, []string{"double"}, m.Methods())

	h, err := reg.Resolve(context.Background(), "double")
	require.NoError(t, err)
	assert.Equal(t, registry.KindDirect, h.Kind())

	read := scope.NewRecorder()
	sc := scope.New(trace.NewTrace("t"), scope.Conf{}, scope.Hooks{OnRead: read.Record})

	jobs, errs := runJobs(t, h, `[[1],[21]]`, sc)
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, jobs[0].Result)
	assert.EqualValues(t, 42, jobs[1].Result)
	assert.Equal(t, []string{"numbers"}, read.Names())
}

func TestManager_BatchPlugin(t *testing.T) {
	_, reg := loadRegistry(t, map[string]string{
		"sum.js": `// @method sum
function executeBatch(list) {
    scope.changed("totals");
    return list.map(function (args) { return args[0] + args[1]; });
}
`,
	})

	h, err := reg.Resolve(context.Background(), "sum")
	require.NoError(t, err)
	assert.Equal(t, registry.KindGrouping, h.Kind())

	jobs, errs := runJobs(t, h, `[[1,2],[3,4],[5,6]]`, scope.New(nil, scope.Conf{}, scope.Hooks{}))
	require.Len(t, errs, 1)
	require.NoError(t, errs[0])
	assert.EqualValues(t, 3, jobs[0].Result)
	assert.EqualValues(t, 7, jobs[1].Result)
	assert.EqualValues(t, 11, jobs[2].Result)
}

func TestManager_BatchPluginWrongLength(t *testing.T) {
	_, reg := loadRegistry(t, map[string]string{
		"short.js": "// @method short\nfunction executeBatch(list) { return [1]; }\n",
	})

	h, err := reg.Resolve(context.Background(), "short")
	require.NoError(t, err)

	_, errs := runJobs(t, h, `[[],[]]`, scope.New(nil, scope.Conf{}, scope.Hooks{}))
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "executeBatch returned 1 results for 2 jobs")
}

func TestManager_ThrownErrorMessage(t *testing.T) {
	_, reg := loadRegistry(t, map[string]string{
		"fail.js": "// @method fail\nfunction execute() { throw new Error('boom'); }\n",
		"raw.js":  "// @method raw\nfunction execute() { throw 'wtf'; }\n",
	})

	h, err := reg.Resolve(context.Background(), "fail")
	require.NoError(t, err)
	_, errs := runJobs(t, h, `[[]]`, scope.New(nil, scope.Conf{}, scope.Hooks{}))
	assert.EqualError(t, errs[0], "Error: boom")

	h, err = reg.Resolve(context.Background(), "raw")
	require.NoError(t, err)
	_, errs = runJobs(t, h, `[[]]`, scope.New(nil, scope.Conf{}, scope.Hooks{}))
	assert.EqualError(t, errs[0], "wtf")
}

func TestManager_LoadFailures(t *testing.T) {
	_, reg := loadRegistry(t, map[string]string{
		"syntax.js": "// @method syntax\nfunction execute( {\n",
		"empty.js":  "// @method empty\nvar x = 1;\n",
	})

	for _, method := range []string{"syntax", "empty"} {
		_, err := reg.Resolve(context.Background(), method)
		var loadErr *registry.LoadError
		require.ErrorAs(t, err, &loadErr, method)
		assert.Contains(t, err.Error(), "failed to load module: ")
	}
}

func TestManager_Timeout(t *testing.T) {
	m, reg := loadRegistry(t, map[string]string{
		"spin.js": "// @method spin\nfunction execute() { while (true) {} }\n",
	})
	m.SetTimeout(20 * time.Millisecond)

	h, err := reg.Resolve(context.Background(), "spin")
	require.NoError(t, err)

	_, errs := runJobs(t, h, `[[]]`, scope.New(nil, scope.Conf{}, scope.Hooks{}))
	assert.ErrorIs(t, errs[0], ErrTimeout)
}

func TestManager_MissingDirectory(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.LoadFromDirectory(filepath.Join(t.TempDir(), "absent")))
	assert.Empty(t, m.Methods())
}

func TestManager_DuplicateMethodKeepsFirst(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.LoadFromDirectory(writePlugins(t, map[string]string{
		"a.js": "// @method same\nfunction execute() { return 'a'; }\n",
		"b.js": "// @method same\nfunction execute() { return 'b'; }\n",
	})))
	assert.Equal(t, []string{"same"}, m.Methods())
}

func TestManager_RPCCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var args [][]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		for i, a := range args {
			var n float64
			_ = json.Unmarshal(a[0], &n)
			line, _ := protocol.MarshalSuccess(i, n+100, []string{"remote"}, nil)
			_, _ = w.Write(line)
		}
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	c := client.New(client.Config{
		MaxWait:   time.Millisecond,
		Discovery: discovery.NewStatic(nil, true, zerolog.Nop()),
		Logger:    zerolog.Nop(),
	})
	defer func() { _ = c.Close(context.Background()) }()

	m, reg := loadRegistry(t, map[string]string{
		"proxy.js": "// @method proxy\nfunction execute(n) { return rpc.call('" + host + "', " + port + ", 'add', [n]); }\n",
	})
	m.SetCaller(c)

	h, err := reg.Resolve(context.Background(), "proxy")
	require.NoError(t, err)

	read := scope.NewRecorder()
	jobs, errs := runJobs(t, h, `[[1]]`, scope.New(nil, scope.Conf{}, scope.Hooks{OnRead: read.Record}))
	require.NoError(t, errs[0])
	assert.EqualValues(t, 101, jobs[0].Result)
	assert.Equal(t, []string{"remote"}, read.Names())
}
