package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tinshift/internal/logger"
	"tinshift/internal/tinshift"
)

func formatCoord(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// 文档注释：逐行变换
// 背景：每行 "x y [z] [附加文本]"，z 缺省为 0，附加文本原样跟随输出；空行原样输出，# 开头的注释行跳过。
// 返回：格式错误的行数（该行输出 "* * *" 并记日志，不中断后续行）；仅读写错误返回 error。
func run(ev *tinshift.Evaluator, dir tinshift.Direction, in io.Reader, out io.Writer, prec int) (int, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	w := bufio.NewWriter(out)
	bad := 0
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" {
			if _, err := w.WriteString("\n"); err != nil {
				return bad, err
			}
			continue
		}
		p, rest, err := parseLine(line)
		var s string
		switch {
		case err != nil:
			bad++
			logger.L().Warn("cli_bad_line", "line", lineNo, "err", err)
			s = "* * *"
		default:
			if q, ok := ev.Transform(dir, p); ok {
				s = formatCoord(q.X, prec) + " " + formatCoord(q.Y, prec) + " " + formatCoord(q.Z, prec)
			} else {
				s = "* * *"
			}
		}
		if rest != "" {
			s += " " + rest
		}
		if _, err := w.WriteString(s + "\n"); err != nil {
			return bad, err
		}
	}
	if err := sc.Err(); err != nil {
		return bad, err
	}
	return bad, w.Flush()
}

func parseLine(line string) (tinshift.Point, string, error) {
	f := strings.Fields(line)
	if len(f) < 2 {
		return tinshift.Point{}, "", fmt.Errorf("expected at least 2 values, got %d", len(f))
	}
	var p tinshift.Point
	var err error
	if p.X, err = strconv.ParseFloat(f[0], 64); err != nil {
		return p, "", fmt.Errorf("bad x %q", f[0])
	}
	if p.Y, err = strconv.ParseFloat(f[1], 64); err != nil {
		return p, "", fmt.Errorf("bad y %q", f[1])
	}
	rest := f[2:]
	if len(rest) > 0 {
		if z, err := strconv.ParseFloat(rest[0], 64); err == nil {
			p.Z = z
			rest = rest[1:]
		}
	}
	return p, strings.Join(rest, " "), nil
}
