package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/storage"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

const vehicleAd = "רכב Toyotta Corolla שנת 2017, יד 1, 90000 קמ, מחיר 52000 ש\"ח, 050-1234567"

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI with args and returns what it wrote to stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	serverURL, apiKey = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeKBFile(t *testing.T, version string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.yaml")
	data, err := knowledge.Encode(&knowledge.KnowledgeBase{
		Version:          version,
		MakeModelIndex:   map[string][]string{"Toyota": {"Corolla", "Yaris"}, "Mazda": {"3", "CX-5"}},
		CategorySynonyms: map[string]string{"ספה": "Furniture"},
	}, knowledge.FormatYAML)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadBatch(t *testing.T) {
	in := strings.Join([]string{
		`{"text": "first", "title": "T"}`,
		"",
		"  plain ad text  ",
		`{"html": "<p>x</p>", "useKnowledgeBase": false}`,
	}, "\n")

	reqs, err := readBatch(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, magicparse.AnalyzeRequest{Text: "first", Title: "T"}, reqs[0])
	assert.Equal(t, "plain ad text", reqs[1].Text)
	assert.Equal(t, "<p>x</p>", reqs[2].HTML)
	require.NotNil(t, reqs[2].UseKnowledgeBase)
	assert.False(t, *reqs[2].UseKnowledgeBase)

	_, err = readBatch(strings.NewReader("ok\n\n{broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ad.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))

	got, err := readInput([]string{"from arg"}, path, strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from arg", got)

	got, err = readInput(nil, path, strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	got, err = readInput(nil, "", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readInput(nil, filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "999 ₪", formatPrice(999))
	assert.Equal(t, "52,000 ₪", formatPrice(52000))
	assert.Equal(t, "1,250,000 ₪", formatPrice(1250000))
	assert.Equal(t, "1,500.5 ₪", formatPrice(1500.5))
}

func TestUITable(t *testing.T) {
	var out bytes.Buffer
	ui := NewUI(&out, false, true)
	ui.Table([]string{"Key", "Value"}, [][]string{{"engine_volume", "1600"}, {"color", "לבן"}})

	want := strings.Join([]string{
		"┌───────────────┬───────┐",
		"│ Key           │ Value │",
		"├───────────────┼───────┤",
		"│ engine_volume │ 1600  │",
		"│ color         │ לבן   │",
		"└───────────────┴───────┘",
		"",
	}, "\n")
	assert.Equal(t, want, out.String())

	var quiet bytes.Buffer
	NewUI(&quiet, true, true).Table([]string{"Key"}, [][]string{{"x"}})
	assert.Empty(t, quiet.String())
}

func TestAnalyzeCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "none")
	kb := writeKBFile(t, "cli-1")

	out, err := execute(t, "", "--json", "--kb", kb, "analyze", vehicleAd)
	require.NoError(t, err)

	var resp magicparse.AnalyzeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Vehicles", resp.Result.Category)
	assert.Equal(t, "Toyota", resp.Result.Make)
	assert.Equal(t, "cli-1", resp.Result.KnowledgeVersion)

	out, err = execute(t, vehicleAd, "--kb", kb, "analyze", "--no-kb")
	require.NoError(t, err)
	assert.Contains(t, out, "━━━ LISTING ━━━")
	assert.Contains(t, out, "Price: 52,000 ₪")
	assert.Contains(t, out, "Vehicle: Toyotta Corolla")
	assert.Contains(t, out, "Contact: 0501234567")
}

func TestAnalyzeCommand_Empty(t *testing.T) {
	t.Setenv("DATABASE_URL", "none")

	_, err := execute(t, "   ", "analyze")
	assert.Error(t, err)
}

func TestAnalyzeCommand_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/listings/analyze", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req magicparse.AnalyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(magicparse.AnalyzeResponse{ID: "remote-1", Result: magicparse.AnalyzeListingText(req.Text)})
	}))
	defer srv.Close()

	out, err := execute(t, "", "--json", "--server", srv.URL, "--api-key", "k", "analyze", vehicleAd)
	require.NoError(t, err)

	var resp magicparse.AnalyzeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "remote-1", resp.ID)
	assert.Equal(t, "Vehicles", resp.Result.Category)
}

func TestBatchCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "none")

	in := vehicleAd + "\n" + `{"text": ""}` + "\n" + "אייפון 13 256gb כמו חדש 2500 ש\"ח\n"
	out, err := execute(t, in, "--json", "batch")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	var results []batchLine
	for _, l := range lines {
		var bl batchLine
		require.NoError(t, json.Unmarshal([]byte(l), &bl))
		results = append(results, bl)
	}
	assert.Equal(t, 1, results[0].Item)
	require.NotNil(t, results[0].Response)
	assert.Equal(t, "Vehicles", results[0].Response.Result.Category)
	assert.Nil(t, results[1].Response)
	assert.NotEmpty(t, results[1].Error)
	require.NotNil(t, results[2].Response)
	assert.Equal(t, "Electronics", results[2].Response.Result.Category)
}

func TestKBCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "lp.db")
	t.Setenv("DATABASE_URL", "sqlite:"+db)
	t.Setenv("KNOWLEDGE_SOURCE", "database")
	kb := writeKBFile(t, "kb-db-1")

	out, err := execute(t, "", "--json", "kb", "validate", kb)
	require.NoError(t, err)
	var stats knowledge.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, knowledge.Stats{Version: "kb-db-1", Makes: 2, Models: 4, Synonyms: 1}, stats)

	_, err = execute(t, "", "--json", "kb", "import", kb)
	require.NoError(t, err)

	out, err = execute(t, "", "--json", "kb", "stats")
	require.NoError(t, err)
	var info magicparse.KnowledgeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "kb-db-1", info.Version)
	assert.Equal(t, 2, info.Makes)

	out, err = execute(t, "", "kb", "export", "--format", "json")
	require.NoError(t, err)
	exported, err := knowledge.Decode([]byte(out), knowledge.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "kb-db-1", exported.Version)
	assert.ElementsMatch(t, []string{"Corolla", "Yaris"}, exported.MakeModelIndex["Toyota"])
	assert.Equal(t, "Furniture", exported.CategorySynonyms["ספה"])

	_, err = execute(t, "", "kb", "reload")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:"+filepath.Join(t.TempDir(), "lp.db"))

	out, err := execute(t, "", "--json", "migrate", "--status")
	require.NoError(t, err)
	var before storage.MigrationStatus
	require.NoError(t, json.Unmarshal([]byte(out), &before))
	assert.False(t, before.UpToDate)

	_, err = execute(t, "", "--json", "migrate")
	require.NoError(t, err)

	out, err = execute(t, "", "--json", "migrate", "--status")
	require.NoError(t, err)
	var after storage.MigrationStatus
	require.NoError(t, json.Unmarshal([]byte(out), &after))
	assert.True(t, after.UpToDate)
	assert.Empty(t, after.Pending)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "listing-parser-cli v"+version+"\n", out)
}
