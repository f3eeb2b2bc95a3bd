package svn

import (
	"context"
	"slices"
	"sync"
	"testing"
)

type fakeCall struct {
	dir  string
	args []string
	env  []string
}

// fakeRunner records svn invocations and answers them through handle.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []fakeCall
	handle func(args []string) (stdout, stderr string, exitCode int)
}

func (f *fakeRunner) run(_ context.Context, _ string, dir string, args, env []string) ([]byte, []byte, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{dir: dir, args: slices.Clone(args), env: env})
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return nil, nil, 0, nil
	}
	stdout, stderr, code := handle(args)
	return []byte(stdout), []byte(stderr), code, nil
}

func (f *fakeRunner) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// callsFor returns the recorded calls of one svn subcommand.
func (f *fakeRunner) callsFor(command string) []fakeCall {
	var out []fakeCall
	for _, c := range f.Calls() {
		if len(c.args) > 0 && c.args[0] == command {
			out = append(out, c)
		}
	}
	return out
}

func newFakeClient(t *testing.T, handle func(args []string) (string, string, int)) (*Client, *fakeRunner) {
	t.Helper()
	fake := &fakeRunner{handle: handle}
	client := NewClient(ClientOptions{})
	client.run = fake.run
	return client, fake
}

const sampleInfoXML = `<?xml version="1.0" encoding="UTF-8"?>
<info>
<entry kind="dir" path="." revision="42">
<url>https://svn.example.com/repos/project/branches/feature-x</url>
<relative-url>^/project/branches/feature-x</relative-url>
<repository>
<root>https://svn.example.com/repos</root>
<uuid>2a5d3f1e-0000-4c2b-9d7e-000000000001</uuid>
</repository>
<wc-info>
<wcroot-abspath>/home/dev/ws/project</wcroot-abspath>
<schedule>normal</schedule>
<depth>infinity</depth>
</wc-info>
<commit revision="41">
<author>alice</author>
<date>2024-05-01T10:00:00.000000Z</date>
</commit>
</entry>
</info>`
