package common

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// DeepCopyByGob clones src into dst through a gob round trip.
func DeepCopyByGob(dst, src interface{}) error {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(src); err != nil {
		return errors.Wrap(err, "")
	}
	return gob.NewDecoder(&buffer).Decode(dst)
}

func MaxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func GetStringwithDefault(value, defaul string) string {
	if value == "" {
		return defaul
	}
	return value
}

func GetIntwithDefault(value, defaul int) int {
	if value == 0 {
		return defaul
	}
	return value
}

func ArraySearch(target string, str []string) bool {
	for _, s := range str {
		if target == s {
			return true
		}
	}
	return false
}

func ConvertDuration(start, end time.Time) string {
	if end.Before(start) {
		return ""
	}
	return end.Sub(start).Truncate(time.Second).String()
}

// GetOutboundIP returns the preferred local address, used when the
// server ip is not configured explicitly.
func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP
}

// Sha256File streams the file through sha256 so artifact size is not
// bounded by memory.
func Sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	defer f.Close()
	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GzipFile compresses src into src.gz and removes the original.
func GzipFile(src string) (string, error) {
	dst := src + ".gz"
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	gw := gzip.NewWriter(out)
	if _, err = io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		_ = os.Remove(dst)
		return "", errors.Wrap(err, "")
	}
	if err = gw.Close(); err != nil {
		out.Close()
		return "", errors.Wrap(err, "")
	}
	if err = out.Close(); err != nil {
		return "", errors.Wrap(err, "")
	}
	_ = os.Remove(src)
	return dst, nil
}

// GunzipFile decompresses src into dst.
func GunzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer gr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer out.Close()
	if _, err = io.Copy(out, gr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func EnvStringVar(value *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*value = v
	}
}

func EnvBoolVar(value *bool, key string) {
	if _, ok := os.LookupEnv(key); ok {
		*value = true
	}
}

func FormatReadableSize(size int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	fsize := float64(size)
	i := 0
	for fsize >= 1024 && i < len(units)-1 {
		fsize /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", fsize, units[i])
}
