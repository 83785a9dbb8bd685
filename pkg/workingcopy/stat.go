package workingcopy

import (
	"os"
	"reflect"

	"github.com/odvcencio/jig/pkg/object"
)

// fingerprint identifies a file version cheaply. When the fingerprint
// recorded at the last snapshot or update still matches, the file is
// assumed unchanged and is not read again.
type fingerprint struct {
	Mode    string `json:"mode"`
	MtimeNs int64  `json:"mtime_ns"`
	Size    int64  `json:"size"`
	CtimeNs int64  `json:"ctime_ns,omitempty"`
	Inode   uint64 `json:"inode,omitempty"`
}

func fingerprintOf(info os.FileInfo) fingerprint {
	fp := fingerprint{
		Mode:    modeFromFileInfo(info),
		MtimeNs: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}
	if st, ok := statStruct(info); ok {
		fp.Inode = uintField(st, "Ino")
		for _, name := range []string{"Ctim", "Ctimespec"} {
			if ts := st.FieldByName(name); ts.IsValid() && ts.Kind() == reflect.Struct {
				fp.CtimeNs = intField(ts, "Sec")*1_000_000_000 + intField(ts, "Nsec")
				break
			}
		}
	}
	return fp
}

// statStruct returns the platform stat record behind info, read through
// reflection so the package builds on every GOOS.
func statStruct(info os.FileInfo) (reflect.Value, bool) {
	sys := info.Sys()
	if sys == nil {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(sys)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.Kind() == reflect.Struct
}

func uintField(v reflect.Value, name string) uint64 {
	f := v.FieldByName(name)
	switch {
	case !f.IsValid():
		return 0
	case f.CanUint():
		return f.Uint()
	case f.CanInt() && f.Int() >= 0:
		return uint64(f.Int())
	}
	return 0
}

func intField(v reflect.Value, name string) int64 {
	f := v.FieldByName(name)
	switch {
	case !f.IsValid():
		return 0
	case f.CanInt():
		return f.Int()
	case f.CanUint():
		return int64(f.Uint())
	}
	return 0
}

func modeFromFileInfo(info os.FileInfo) string {
	if info.Mode()&0o111 != 0 {
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}

func filePerm(mode string) os.FileMode {
	if mode == object.TreeModeExecutable {
		return 0o755
	}
	return 0o644
}
