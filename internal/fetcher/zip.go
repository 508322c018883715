package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// maxShapefileMember caps the uncompressed size of one archive member.
const maxShapefileMember = 1 << 30

// shapefileMembers are the sidecar extensions go-shp reads next to a .shp.
var shapefileMembers = map[string]bool{
	".shp": true,
	".shx": true,
	".dbf": true,
	".prj": true,
	".cpg": true,
}

// ExtractShapefile writes the shapefile members of a zip archive (.shp, .shx,
// .dbf, .prj, .cpg) flat into destDir and returns the path of the single .shp.
// Other members and any directory structure inside the archive are ignored.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "zip: open %s", filepath.Base(zipPath))
	}
	defer zr.Close() //nolint:errcheck

	var shps []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		ext := strings.ToLower(path.Ext(base))
		if !shapefileMembers[ext] || strings.HasPrefix(base, ".") {
			continue
		}

		dest := filepath.Join(destDir, base)
		if err := writeMember(f, dest); err != nil {
			return "", err
		}
		if ext == ".shp" {
			shps = append(shps, dest)
		}
	}

	if len(shps) != 1 {
		return "", eris.Errorf("zip: expected exactly 1 .shp in %s, got %d", filepath.Base(zipPath), len(shps))
	}
	return shps[0], nil
}

func writeMember(f *zip.File, dest string) error {
	if f.UncompressedSize64 > maxShapefileMember {
		return eris.Errorf("zip: member %s is too large (%d bytes)", f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open member %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", dest)
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxShapefileMember)); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "zip: write %s", dest)
	}
	return eris.Wrapf(out.Close(), "zip: close %s", dest)
}
