package services_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotfolder/internal/config"
	"hotfolder/internal/models"
	"hotfolder/internal/services"
	"hotfolder/internal/store/ledger"
)

// fakeProvider is a scripted BatchAPIProvider.
type fakeProvider struct {
	mu sync.Mutex

	uploadHandle string
	uploadErr    error
	jobName      string
	createErr    error
	statuses     map[string]services.BatchJobStatus
	retrieveErrs map[string]error
	outputs      map[string][]byte

	uploads   [][]byte
	creates   []string
	retrieves []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		uploadHandle: "files/input-1",
		jobName:      "batches/job-1",
		statuses:     map[string]services.BatchJobStatus{},
		retrieveErrs: map[string]error{},
		outputs:      map[string][]byte{},
	}
}

func (f *fakeProvider) UploadFile(_ context.Context, _, _ string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, content)
	return f.uploadHandle, f.uploadErr
}

func (f *fakeProvider) CreateBatch(_ context.Context, model, inputFileName, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, model+"|"+inputFileName)
	return f.jobName, f.createErr
}

func (f *fakeProvider) RetrieveBatch(_ context.Context, name string) (services.BatchJobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieves = append(f.retrieves, name)
	if err := f.retrieveErrs[name]; err != nil {
		return services.BatchJobStatus{}, err
	}
	st, ok := f.statuses[name]
	if !ok {
		return services.BatchJobStatus{Name: name, State: models.RemoteStatePending, RawState: "JOB_STATE_PENDING"}, nil
	}
	return st, nil
}

func (f *fakeProvider) GetFileContent(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.outputs[name]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (f *fakeProvider) succeed(job, output string) {
	f.statuses[job] = services.BatchJobStatus{Name: job, State: models.RemoteStateSucceeded, RawState: "JOB_STATE_SUCCEEDED", OutputFile: output}
}

func (f *fakeProvider) set(job string, state models.RemoteState) {
	f.statuses[job] = services.BatchJobStatus{Name: job, State: state, RawState: string(state)}
}

// countingLedger counts writes to the wrapped ledger. A non-nil updateErr
// fails every Update without touching the file.
type countingLedger struct {
	*ledger.Store
	mu        sync.Mutex
	writes    int
	updateErr error
}

func (c *countingLedger) Save(ctx context.Context, records []models.JobRecord) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Store.Save(ctx, records)
}

func (c *countingLedger) Update(ctx context.Context, fn func([]models.JobRecord) ([]models.JobRecord, error)) error {
	c.mu.Lock()
	c.writes++
	failErr := c.updateErr
	c.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	return c.Store.Update(ctx, fn)
}

type agentsFixture struct {
	cfg      config.AgentsConfig
	ledger   *countingLedger
	provider *fakeProvider
	svc      *services.AgentsService
}

func newAgentsFixture(t *testing.T) *agentsFixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.AgentsConfig{
		Model:          "test-model",
		WatchPath:      filepath.Join(root, "watch"),
		ProcessingPath: filepath.Join(root, "processing"),
		OutputPath:     filepath.Join(root, "out"),
		StateFile:      filepath.Join(root, "state.json"),
		TempDir:        root,
	}
	ls := &countingLedger{Store: ledger.New(cfg.StateFile)}
	p := newFakeProvider()
	svc := services.NewAgentsService(ls, p, cfg)
	require.NoError(t, svc.Prepare())
	return &agentsFixture{cfg: cfg, ledger: ls, provider: p, svc: svc}
}

func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Repeat("x", size)), 0o644))
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (f *agentsFixture) records(t *testing.T) []models.JobRecord {
	t.Helper()
	records, err := f.ledger.Load(context.Background())
	require.NoError(t, err)
	return records
}

func (f *agentsFixture) seed(t *testing.T, records ...models.JobRecord) {
	t.Helper()
	require.NoError(t, f.ledger.Store.Save(context.Background(), records))
}

func resultLine(t *testing.T, key, mime string, data []byte, text string) string {
	t.Helper()
	parts := []map[string]any{}
	if data != nil {
		parts = append(parts, map[string]any{"inlineData": map[string]any{"mimeType": mime, "data": base64.StdEncoding.EncodeToString(data)}})
	}
	if text != "" {
		parts = append(parts, map[string]any{"text": text})
	}
	line := map[string]any{
		"response": map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": parts}}},
		},
	}
	if key != "" {
		line["key"] = key
	}
	b, err := json.Marshal(line)
	require.NoError(t, err)
	return string(b)
}

func TestSubmit_BundlesEligibleImages(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.WatchPath, "a.jpg", 500)
	writeFile(t, f.cfg.WatchPath, "b.png", 800)
	writeFile(t, f.cfg.WatchPath, ".hidden.jpg", 100)
	writeFile(t, f.cfg.WatchPath, "empty.jpg", 0)
	writeFile(t, f.cfg.WatchPath, "notes.txt", 10)

	require.NoError(t, f.svc.Submit(context.Background()))

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "batches/job-1", records[0].JobName)
	assert.Equal(t, []string{"a.jpg", "b.png"}, records[0].Files)
	assert.Equal(t, models.JobStatusPending, records[0].Status)
	assert.NotZero(t, records[0].SubmittedAt)

	assert.ElementsMatch(t, []string{"a.jpg", "b.png"}, listNames(t, f.cfg.ProcessingPath))
	assert.ElementsMatch(t, []string{".hidden.jpg", "empty.jpg", "notes.txt"}, listNames(t, f.cfg.WatchPath))

	require.Len(t, f.provider.uploads, 1)
	assert.Equal(t, []string{"test-model|files/input-1"}, f.provider.creates)

	lines := strings.Split(string(f.provider.uploads[0]), "\n")
	require.Len(t, lines, 2)
	var first struct {
		Key     string `json:"key"`
		Request struct {
			Contents []struct {
				Parts []struct {
					InlineData *struct {
						MIMEType string `json:"mime_type"`
						Data     string `json:"data"`
					} `json:"inline_data"`
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		} `json:"request"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "a.jpg", first.Key)
	require.Len(t, first.Request.Contents, 1)
	parts := first.Request.Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 500))), parts[0].InlineData.Data)
	assert.Equal(t, config.DefaultInstruction, parts[1].Text)
}

func TestSubmit_NothingToDo(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.WatchPath, ".DS_Store", 10)

	require.NoError(t, f.svc.Submit(context.Background()))

	assert.Empty(t, f.provider.uploads)
	assert.Empty(t, f.records(t))
	assert.Zero(t, f.ledger.writes)
}

func TestSubmit_RollsBackOnRemoteFailure(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *fakeProvider)
		wantErr error
	}{
		{name: "upload fails", setup: func(p *fakeProvider) { p.uploadErr = errors.New("quota") }},
		{name: "empty upload handle", setup: func(p *fakeProvider) { p.uploadHandle = "" }, wantErr: models.ErrEmptyHandle},
		{name: "create fails", setup: func(p *fakeProvider) { p.createErr = errors.New("bad model") }},
		{name: "empty job name", setup: func(p *fakeProvider) { p.jobName = "" }, wantErr: models.ErrEmptyHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAgentsFixture(t)
			tt.setup(f.provider)
			writeFile(t, f.cfg.WatchPath, "a.jpg", 500)
			writeFile(t, f.cfg.WatchPath, "b.png", 800)

			err := f.svc.Submit(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			assert.ElementsMatch(t, []string{"a.jpg", "b.png"}, listNames(t, f.cfg.WatchPath))
			assert.Empty(t, listNames(t, f.cfg.ProcessingPath))
			assert.Empty(t, f.records(t))
		})
	}
}

func TestSubmit_LedgerFailureRollsBack(t *testing.T) {
	f := newAgentsFixture(t)
	f.ledger.updateErr = errors.New("disk full")
	writeFile(t, f.cfg.WatchPath, "a.jpg", 500)
	writeFile(t, f.cfg.WatchPath, "b.png", 800)

	err := f.svc.Submit(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")

	assert.Equal(t, []string{"test-model|files/input-1"}, f.provider.creates)
	assert.ElementsMatch(t, []string{"a.jpg", "b.png"}, listNames(t, f.cfg.WatchPath))
	assert.Empty(t, listNames(t, f.cfg.ProcessingPath))
	assert.Empty(t, f.records(t))
}

func TestSubmit_FailedMoveSkipsOnlyThatFile(t *testing.T) {
	f := newAgentsFixture(t)
	f.svc.SetMoveFile(func(src, dst string) error {
		if filepath.Base(src) == "a.jpg" {
			return errors.New("permission denied")
		}
		return os.Rename(src, dst)
	})
	writeFile(t, f.cfg.WatchPath, "a.jpg", 500)
	writeFile(t, f.cfg.WatchPath, "b.png", 800)

	require.NoError(t, f.svc.Submit(context.Background()))

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"b.png"}, records[0].Files)
	assert.Equal(t, []string{"a.jpg"}, listNames(t, f.cfg.WatchPath))
	assert.Equal(t, []string{"b.png"}, listNames(t, f.cfg.ProcessingPath))
}

func TestSubmit_LeavesNameStillInProcessing(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.ProcessingPath, "a.jpg", 300)
	writeFile(t, f.cfg.WatchPath, "a.jpg", 500)
	writeFile(t, f.cfg.WatchPath, "b.png", 800)

	require.NoError(t, f.svc.Submit(context.Background()))

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"b.png"}, records[0].Files)
	assert.Equal(t, []string{"a.jpg"}, listNames(t, f.cfg.WatchPath))

	data, err := os.ReadFile(filepath.Join(f.cfg.ProcessingPath, "a.jpg"))
	require.NoError(t, err)
	assert.Len(t, data, 300)
}

func TestPoll_SucceededSavesOutputAndDeletesInputs(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.ProcessingPath, "a.jpg", 500)
	f.seed(t, models.JobRecord{JobName: "batches/j1", Files: []string{"a.jpg"}, SubmittedAt: 1, Status: models.JobStatusPending})

	png := []byte("\x89PNG fake image")
	f.provider.succeed("batches/j1", "files/out-1")
	f.provider.outputs["files/out-1"] = []byte(resultLine(t, "a.jpg", "image/png", png, "done") + "\n")

	require.NoError(t, f.svc.Poll(context.Background()))

	got, err := os.ReadFile(filepath.Join(f.cfg.OutputPath, "a_upscaled.png"))
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.Empty(t, listNames(t, f.cfg.ProcessingPath))
	assert.Empty(t, f.records(t))
	assert.Equal(t, 1, f.ledger.writes)
}

func TestPoll_OutputRecordsAreIsolated(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.ProcessingPath, "a.jpg", 10)
	writeFile(t, f.cfg.ProcessingPath, "b.jpg", 10)
	f.seed(t, models.JobRecord{JobName: "batches/j1", Files: []string{"a.jpg", "b.jpg"}, Status: models.JobStatusRunning})

	bundle := strings.Join([]string{
		resultLine(t, "a.jpg", "image/jpeg", []byte("one"), ""),
		"{not json",
		"",
		resultLine(t, "", "image/jpeg", []byte("anon"), ""),
		resultLine(t, "b.jpg", "image/png", []byte("two"), strings.Repeat("t", 500)),
	}, "\n")
	f.provider.succeed("batches/j1", "files/out-1")
	f.provider.outputs["files/out-1"] = []byte(bundle) // no trailing newline

	require.NoError(t, f.svc.Poll(context.Background()))

	out := listNames(t, f.cfg.OutputPath)
	assert.Contains(t, out, "a_upscaled.jpg")
	assert.Contains(t, out, "b_upscaled.png")
	anon, err := filepath.Glob(filepath.Join(f.cfg.OutputPath, "unknown-*_upscaled.jpg"))
	require.NoError(t, err)
	assert.Len(t, anon, 1)
	assert.Empty(t, listNames(t, f.cfg.ProcessingPath))
	assert.Empty(t, f.records(t))
}

func TestPoll_MultipleImagesPerKey(t *testing.T) {
	f := newAgentsFixture(t)
	f.seed(t, models.JobRecord{JobName: "batches/j1", Files: []string{"a.jpg"}, Status: models.JobStatusPending})

	line := `{"key":"a.jpg","response":{"candidates":[{"content":{"parts":[` +
		`{"inlineData":{"mimeType":"image/png","data":"` + base64.StdEncoding.EncodeToString([]byte("1")) + `"}},` +
		`{"inlineData":{"mimeType":"image/jpeg","data":"` + base64.StdEncoding.EncodeToString([]byte("2")) + `"}}]}}]}}`
	f.provider.succeed("batches/j1", "files/out")
	f.provider.outputs["files/out"] = []byte(line)

	require.NoError(t, f.svc.Poll(context.Background()))

	assert.ElementsMatch(t, []string{"a_upscaled.png", "a_upscaled_2.jpg"}, listNames(t, f.cfg.OutputPath))
}

func TestPoll_SucceededWithoutOutputClosesJob(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.ProcessingPath, "a.jpg", 10)
	f.seed(t, models.JobRecord{JobName: "batches/j1", Files: []string{"a.jpg"}, Status: models.JobStatusPending})
	f.provider.succeed("batches/j1", "")

	require.NoError(t, f.svc.Poll(context.Background()))

	assert.Empty(t, f.records(t))
	assert.Empty(t, listNames(t, f.cfg.OutputPath))
	assert.Equal(t, []string{"a.jpg"}, listNames(t, f.cfg.ProcessingPath))
}

func TestPoll_UnsuccessfulJobsReturnFiles(t *testing.T) {
	for _, state := range []models.RemoteState{models.RemoteStateFailed, models.RemoteStateCancelled, models.RemoteStateExpired} {
		t.Run(string(state), func(t *testing.T) {
			f := newAgentsFixture(t)
			writeFile(t, f.cfg.ProcessingPath, "a.jpg", 500)
			f.seed(t, models.JobRecord{JobName: "batches/j1", Files: []string{"a.jpg", "gone.jpg"}, Status: models.JobStatusPending})
			f.provider.set("batches/j1", state)

			require.NoError(t, f.svc.Poll(context.Background()))

			assert.Equal(t, []string{"a.jpg"}, listNames(t, f.cfg.WatchPath))
			assert.Empty(t, listNames(t, f.cfg.ProcessingPath))
			assert.Empty(t, f.records(t))
		})
	}
}

func TestPoll_RunningIsRecordedOnce(t *testing.T) {
	f := newAgentsFixture(t)
	f.seed(t, models.JobRecord{JobName: "batches/j1", Files: []string{"a.jpg"}, Status: models.JobStatusPending})
	f.provider.set("batches/j1", models.RemoteStateRunning)

	require.NoError(t, f.svc.Poll(context.Background()))
	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, models.JobStatusRunning, records[0].Status)
	assert.Equal(t, 1, f.ledger.writes)

	require.NoError(t, f.svc.Poll(context.Background()))
	assert.Equal(t, 1, f.ledger.writes, "second pass without remote change must not write")
	assert.Equal(t, records, f.records(t))
}

func TestPoll_PendingWritesNothing(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.ProcessingPath, "a.jpg", 10)
	f.seed(t, models.JobRecord{JobName: "batches/j1", Files: []string{"a.jpg"}, Status: models.JobStatusPending})

	require.NoError(t, f.svc.Poll(context.Background()))

	assert.Zero(t, f.ledger.writes)
	assert.Len(t, f.records(t), 1)
	assert.Equal(t, []string{"a.jpg"}, listNames(t, f.cfg.ProcessingPath))
}

func TestPoll_QueryErrorKeepsJobAndContinues(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.ProcessingPath, "b.jpg", 10)
	f.seed(t,
		models.JobRecord{JobName: "batches/broken", Files: []string{"a.jpg"}, Status: models.JobStatusPending},
		models.JobRecord{JobName: "batches/failed", Files: []string{"b.jpg"}, Status: models.JobStatusPending},
	)
	f.provider.retrieveErrs["batches/broken"] = errors.New("503")
	f.provider.set("batches/failed", models.RemoteStateFailed)

	require.NoError(t, f.svc.Poll(context.Background()))

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "batches/broken", records[0].JobName)
	assert.Equal(t, []string{"b.jpg"}, listNames(t, f.cfg.WatchPath))
}

func TestPoll_TerminalEntriesDroppedWithoutRemoteCall(t *testing.T) {
	f := newAgentsFixture(t)
	f.seed(t,
		models.JobRecord{JobName: "batches/done", Status: models.JobStatusSucceeded},
		models.JobRecord{JobName: "batches/dead", Status: models.JobStatusFailed},
	)

	require.NoError(t, f.svc.Poll(context.Background()))

	assert.Empty(t, f.provider.retrieves)
	assert.Empty(t, f.records(t))
}

func TestRunCycle_PollsBeforeSubmitting(t *testing.T) {
	f := newAgentsFixture(t)
	writeFile(t, f.cfg.ProcessingPath, "old.jpg", 10)
	writeFile(t, f.cfg.WatchPath, "new.jpg", 10)
	f.seed(t, models.JobRecord{JobName: "batches/old", Files: []string{"old.jpg"}, Status: models.JobStatusRunning})
	f.provider.set("batches/old", models.RemoteStateFailed)
	f.provider.jobName = "batches/new"

	f.svc.RunCycle(context.Background())

	// old.jpg went back to watch before the submission step scanned it.
	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "batches/new", records[0].JobName)
	assert.Equal(t, []string{"new.jpg", "old.jpg"}, records[0].Files)
	assert.Empty(t, listNames(t, f.cfg.WatchPath))
}

func TestRunCycle_SwallowsErrors(t *testing.T) {
	f := newAgentsFixture(t)
	require.NoError(t, os.WriteFile(f.cfg.StateFile, []byte("{broken"), 0o644))
	f.provider.uploadErr = errors.New("offline")
	writeFile(t, f.cfg.WatchPath, "a.jpg", 10)

	assert.NotPanics(t, func() { f.svc.RunCycle(context.Background()) })
	assert.Equal(t, []string{"a.jpg"}, listNames(t, f.cfg.WatchPath))
}
