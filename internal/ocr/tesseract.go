package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"exteroid/internal"
)

// TesseractEngine shells out to the tesseract binary. Every worker gets its
// own scratch directory.
type TesseractEngine struct {
	Bin     string
	Lang    string
	TempDir string
}

func NewTesseractEngine(bin, lang string) *TesseractEngine {
	if bin == "" {
		bin = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &TesseractEngine{Bin: bin, Lang: lang}
}

func (e *TesseractEngine) Acquire(ctx context.Context) (Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(e.TempDir, "exteroid-ocr-*")
	if err != nil {
		return nil, err
	}
	return &tesseractWorker{engine: e, dir: dir}, nil
}

type tesseractWorker struct {
	engine *TesseractEngine
	dir    string
}

func (w *tesseractWorker) Recognize(ctx context.Context, image []byte) (internal.Recognition, error) {
	input := filepath.Join(w.dir, "input")
	if err := os.WriteFile(input, image, 0o600); err != nil {
		return internal.Recognition{}, err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.engine.Bin, input, "stdout", "-l", w.engine.Lang, "tsv")
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return internal.Recognition{}, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseTSV(out)
}

func (w *tesseractWorker) Release() error {
	return os.RemoveAll(w.dir)
}

// ParseTSV reads tesseract's tsv output. Word rows (level 5) become tokens and
// the text is rebuilt line by line.
func ParseTSV(data []byte) (internal.Recognition, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		rec     internal.Recognition
		cols    map[string]int
		lines   []string
		lineKey string
		lineBuf []string
		confSum float64
	)
	flush := func() {
		if len(lineBuf) > 0 {
			lines = append(lines, strings.Join(lineBuf, " "))
			lineBuf = nil
		}
	}

	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if cols == nil {
			cols = map[string]int{}
			for i, name := range fields {
				cols[strings.TrimSpace(name)] = i
			}
			for _, need := range []string{"level", "left", "top", "width", "height", "conf", "text"} {
				if _, ok := cols[need]; !ok {
					return rec, fmt.Errorf("tsv header missing %q", need)
				}
			}
			continue
		}
		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(fields) {
				return fields[i]
			}
			return ""
		}
		if get("level") != "5" {
			continue
		}
		text := strings.TrimSpace(get("text"))
		if text == "" {
			continue
		}
		num := func(name string) float64 {
			v, _ := strconv.ParseFloat(get(name), 64)
			return v
		}
		tok := internal.TextToken{
			Text:       text,
			X:          num("left"),
			Y:          num("top"),
			Width:      num("width"),
			Height:     num("height"),
			Confidence: num("conf"),
		}
		rec.Tokens = append(rec.Tokens, tok)
		confSum += tok.Confidence

		key := get("page_num") + "/" + get("block_num") + "/" + get("par_num") + "/" + get("line_num")
		if key != lineKey {
			flush()
			lineKey = key
		}
		lineBuf = append(lineBuf, text)
	}
	if err := sc.Err(); err != nil {
		return rec, err
	}
	flush()

	rec.Text = strings.Join(lines, "\n")
	if n := len(rec.Tokens); n > 0 {
		rec.Confidence = confSum / float64(n)
	}
	return rec, nil
}
