package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
)

// ReadParquet reads every row of a Parquet file. The header is the schema's
// top-level field names in schema order; values are rendered as text.
func ReadParquet(ctx context.Context, path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "parquet: open file")
	}
	defer file.Close() //nolint:errcheck

	stat, err := file.Stat()
	if err != nil {
		return nil, eris.Wrap(err, "parquet: stat file")
	}

	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, eris.Wrap(err, "parquet: open file")
	}

	fields := pf.Schema().Fields()
	ds := &Dataset{Header: make([]string, len(fields))}
	for i, f := range fields {
		ds.Header[i] = f.Name()
	}

	reader := parquet.NewReader(pf)
	defer reader.Close() //nolint:errcheck

	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "parquet: context cancelled")
		}

		values := make(map[string]any)
		if err := reader.Read(&values); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrap(err, "parquet: read row")
		}

		row := make([]string, len(ds.Header))
		for i, name := range ds.Header {
			row[i] = parquetString(values[name])
		}
		ds.Rows = append(ds.Rows, row)
	}

	return ds, nil
}

func parquetString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
