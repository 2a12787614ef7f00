package state

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyDocument = `{
    "cash": 9800.0,
    "shares": 2.0,
    "total_invested": 10000,
    "last_pe": 33.5,
    "funded_years": [
        2024
    ],
    "history": [
        "2024-02-01: annual funding +10000",
        "2024-02-01: purchased 2.0000 shares @ 100.0"
    ]
}`

func TestFileStoreMissingReturnsDefault(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "portfolio_status.json"), dec("35"))

	p, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Cash.IsZero())
	assert.True(t, p.Shares.IsZero())
	assert.True(t, p.LastPE.Equal(dec("35")))
	assert.Empty(t, p.FundedYears)
	assert.Empty(t, p.History)
}

func TestFileStoreLoadsLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio_status.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyDocument), 0o644))

	p, err := NewFileStore(path, DefaultSeedPE).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Cash.Equal(dec("9800")))
	assert.True(t, p.Shares.Equal(dec("2")))
	assert.True(t, p.LastPE.Equal(dec("33.5")))
	assert.Equal(t, []int{2024}, p.FundedYears)
	assert.Len(t, p.History, 2)
}

func TestFileStoreCorruptIsFatal(t *testing.T) {
	cases := map[string]string{
		"truncated":       `{"cash": 10`,
		"empty":           ``,
		"negative cash":   `{"cash": -5, "shares": 0, "total_invested": 0, "last_pe": 35, "funded_years": [], "history": []}`,
		"duplicate year":  `{"cash": 0, "shares": 0, "total_invested": 0, "last_pe": 35, "funded_years": [2024, 2024], "history": []}`,
		"null":            `null`,
		"empty object":    `{}`,
		"array":           `[]`,
		"missing last_pe": `{"cash": 500, "shares": 0, "total_invested": 10000, "funded_years": [2024], "history": []}`,
		"null last_pe":    `{"cash": 500, "shares": 0, "total_invested": 10000, "last_pe": null, "funded_years": [2024], "history": []}`,
		"missing history": `{"cash": 500, "shares": 0, "total_invested": 10000, "last_pe": 35, "funded_years": [2024]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "portfolio_status.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := NewFileStore(path, DefaultSeedPE).Load(context.Background())
			require.ErrorIs(t, err, ErrCorrupt)

			after, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			assert.Equal(t, body, string(after))
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "portfolio_status.json")
	store := NewFileStore(path, DefaultSeedPE)
	ctx := context.Background()

	p := Default(DefaultSeedPE)
	require.NoError(t, p.Fund(date(2024, 2, 1), dec("10000")))
	_, err := p.Buy(date(2024, 2, 1), dec("200"), dec("300"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, p))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Cash.Equal(p.Cash))
	assert.True(t, loaded.Shares.Equal(p.Shares))
	assert.True(t, loaded.TotalInvested.Equal(p.TotalInvested))
	assert.Equal(t, p.FundedYears, loaded.FundedYears)
	assert.Equal(t, p.History, loaded.History)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreWritesBareNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio_status.json")
	require.NoError(t, NewFileStore(path, DefaultSeedPE).Save(context.Background(), Default(DefaultSeedPE)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(35), raw["last_pe"])
	assert.Equal(t, float64(0), raw["cash"])
	assert.Equal(t, []any{}, raw["funded_years"])
	assert.Equal(t, []any{}, raw["history"])
}

func TestOpenSelectsBackend(t *testing.T) {
	store, err := Open(context.Background(), "portfolio_status.json", DefaultSeedPE)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = Open(context.Background(), "", DefaultSeedPE)
	assert.Error(t, err)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://my-bucket/dca/portfolio_status.json")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "dca/portfolio_status.json", key)

	_, _, err = parseS3URL("s3://my-bucket/")
	assert.Error(t, err)
}

type fakeObjects struct {
	objects map[string][]byte
	puts    int
}

func (f *fakeObjects) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Bucket+"/"+*params.Key] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := &fakeObjects{objects: map[string][]byte{}}
	store := NewS3Store(fake, "bucket", "state.json", DefaultSeedPE)
	ctx := context.Background()

	p, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, p.LastPE.Equal(DefaultSeedPE))

	require.NoError(t, p.Fund(date(2025, 3, 1), dec("10000")))
	require.NoError(t, store.Save(ctx, p))
	assert.Equal(t, 1, fake.puts)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Cash.Equal(dec("10000")))
	assert.Equal(t, []int{2025}, loaded.FundedYears)
	assert.Equal(t, "s3://bucket/state.json", store.Location())
}

func TestS3StoreCorruptIsFatal(t *testing.T) {
	fake := &fakeObjects{objects: map[string][]byte{"bucket/state.json": []byte("not json")}}
	_, err := NewS3Store(fake, "bucket", "state.json", DefaultSeedPE).Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
}
