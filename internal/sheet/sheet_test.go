package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"orders.csv", FormatCSV},
		{"ORDERS.CSV", FormatCSV},
		{"/tmp/march.xlsx", FormatXLSX},
		{"s3://bucket/exports/march.json", FormatJSON},
		{"https://docs.example.com/d/abc/export?format=csv", FormatCSV},
		{"https://files.example.com/orders.xlsx?sig=1", FormatXLSX},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectFormat("orders.xls")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseCSV(t *testing.T) {
	data := "\ufeffOrder ID, Status ,,Channel\n" +
		"1,Delivered,x,Amazon\n" +
		"2,RTO Delivered\n" +
		"1,Delivered,x,Amazon\n" +
		" , , , \n"

	res, err := Parse(FormatCSV, []byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"Order ID", "Status", "Column3", "Channel"}, res.Headers)
	assert.Equal(t, 3, res.OriginalRows)
	assert.Equal(t, 1, res.DuplicatesRemoved)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Amazon", res.Records[0]["Channel"])
	assert.Nil(t, res.Records[1]["Channel"], "short rows pad with nil")
	assert.Contains(t, res.Records[1], "Channel")
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(FormatCSV, []byte(""))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse(FormatCSV, []byte("Order ID,Status\n"))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse(FormatJSON, []byte("[]"))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse("xls", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Order ID", "Status", "Order Total"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"1001", "Delivered", "499.5"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"1002", "Cancelled", "120"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := Parse(FormatXLSX, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"Order ID", "Status", "Order Total"}, res.Headers)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "499.5", res.Records[0]["Order Total"])

	rec := datanorm.Preprocess(res.Records[0])
	assert.Equal(t, datanorm.StatusDelivered, rec.DeliveryStatus)
}

func TestParseJSON(t *testing.T) {
	data := `[
		{"order_id": 1, "status": "Delivered", "cod": true, "tags": ["a"]},
		{"order_id": 1, "status": "Delivered", "cod": true, "tags": ["a"]},
		{"order_id": 2, "status": null},
		{}
	]`
	res, err := Parse(FormatJSON, []byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"cod", "order_id", "status", "tags"}, res.Headers)
	assert.Equal(t, 1, res.DuplicatesRemoved)
	require.Len(t, res.Records, 2)
	assert.Equal(t, json.Number("1"), res.Records[0]["order_id"])
	assert.Equal(t, "true", res.Records[0]["cod"])
	assert.Equal(t, `["a"]`, res.Records[0]["tags"])
	assert.Nil(t, res.Records[1]["status"])
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	in := []datanorm.RawRecord{
		{"a": "1", "b": "2"},
		{"b": "2", "a": "1"},
		{"a": "1", "b": "3"},
	}
	out := Dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "3", out[1]["b"])
}

type fakeS3 struct {
	objects map[string]string
	gotKey  string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKey = *in.Bucket + "/" + *in.Key
	body, ok := f.objects[f.gotKey]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f[url]
	if !ok {
		return nil, errors.New("status 404")
	}
	return []byte(body), nil
}

func TestLoaderSources(t *testing.T) {
	ctx := context.Background()
	csv := "Order ID,Status\n1,Delivered\n"

	dir := t.TempDir()
	local := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(local, []byte(csv), 0o600))

	s3c := &fakeS3{objects: map[string]string{"exports/2025/orders.csv": csv}}
	web := fakeFetcher{"https://example.com/orders.csv": csv}
	loader := NewLoader(s3c, web)

	for _, src := range []string{local, "s3://exports/2025/orders.csv", "https://example.com/orders.csv"} {
		res, err := loader.Load(ctx, src)
		require.NoError(t, err, src)
		require.Len(t, res.Records, 1, src)
		assert.Equal(t, "Delivered", res.Records[0]["Status"])
	}
	assert.Equal(t, "exports/2025/orders.csv", s3c.gotKey)

	_, err := loader.Load(ctx, "s3://exports/missing.csv")
	assert.ErrorContains(t, err, "NoSuchKey")
	_, err = NewLoader(nil, nil).Load(ctx, "s3://exports/2025/orders.csv")
	assert.ErrorContains(t, err, "no S3 client")
	_, err = loader.Load(ctx, filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRemoteOnlyLoaderRejectsLocalPaths(t *testing.T) {
	ctx := context.Background()
	csv := "Order ID,Status\n1,Delivered\n"

	dir := t.TempDir()
	local := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(local, []byte(csv), 0o600))

	s3c := &fakeS3{objects: map[string]string{"exports/orders.csv": csv}}
	web := fakeFetcher{"http://example.com/orders.csv": csv}
	loader := NewLoader(s3c, web, RemoteOnly())

	for _, src := range []string{local, "/etc/passwd", "../orders.csv", "file:///tmp/orders.csv"} {
		_, err := loader.Load(ctx, src)
		assert.ErrorIs(t, err, ErrLocalSource, src)
	}
	for _, src := range []string{"s3://exports/orders.csv", "http://example.com/orders.csv"} {
		res, err := loader.Load(ctx, src)
		require.NoError(t, err, src)
		assert.Len(t, res.Records, 1, src)
	}
}

func TestLoaderCapsS3Objects(t *testing.T) {
	ctx := context.Background()
	csv := "Order ID,Status\n1,Delivered\n"
	s3c := &fakeS3{objects: map[string]string{"exports/orders.csv": csv}}

	_, err := NewLoader(s3c, nil, WithMaxBytes(int64(len(csv)-1))).Load(ctx, "s3://exports/orders.csv")
	assert.ErrorIs(t, err, ErrTooLarge)

	res, err := NewLoader(s3c, nil, WithMaxBytes(int64(len(csv)))).Load(ctx, "s3://exports/orders.csv")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestSplitS3URI(t *testing.T) {
	bucket, key, err := SplitS3URI("s3://shipments/2025/01/orders.csv")
	require.NoError(t, err)
	assert.Equal(t, "shipments", bucket)
	assert.Equal(t, "2025/01/orders.csv", key)

	for _, bad := range []string{"s3://bucket", "s3:///key", "https://x/y"} {
		_, _, err := SplitS3URI(bad)
		assert.Error(t, err, bad)
	}
}
