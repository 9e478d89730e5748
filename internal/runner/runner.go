// Package runner は外部ツールのプロセス起動と出力の取り込みを提供します。
package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ProgressFunc はストリーミング実行中に抽出された進捗を受け取ります。
// percent は 0..100、line は元の出力行です。
type ProgressFunc func(percent float64, line string)

// Runner は外部ツールの実行を抽象化します。テストではスタブに差し替えます。
type Runner interface {
	// Run はコマンドを実行し、終了コード0の場合のみ標準出力の全文を返します。
	// 失敗時は標準エラーの内容を含むエラーを返します。
	Run(ctx context.Context, name string, args ...string) (string, error)

	// RunProgress はコマンドを実行し、標準エラーの各行からパーセント値を
	// 抽出して sink に渡します。終了コード0で成功します。
	RunProgress(ctx context.Context, sink ProgressFunc, name string, args ...string) error
}

// Local は os/exec による Runner 実装です。
// 引数は必ずベクトルとして渡し、シェル解釈は行いません（URLは攻撃者制御のため）。
type Local struct{}

// Run はコマンドを実行し、全標準出力を収集して返します。
func (Local) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", toolError(name, strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

// RunProgress はコマンドを実行し、標準エラーを1行ずつ走査します。
// 長時間実行される想定のため、行バッファ以上に標準エラーを溜め込みません。
func (Local) RunProgress(ctx context.Context, sink ProgressFunc, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return toolError(name, "", err)
	}

	if err := cmd.Start(); err != nil {
		return toolError(name, "", err)
	}

	lastLine := scanProgress(stderrPipe, sink)

	if err := cmd.Wait(); err != nil {
		return toolError(name, lastLine, err)
	}
	return nil
}

// percentPattern は "42.1%" のような進捗値を抽出します。
var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// scanProgress は r を1行ずつ走査し、パーセント値が見つかった行を sink へ渡します。
// エラー報告用に最後の空でない行を返します。
func scanProgress(r io.Reader, sink ProgressFunc) string {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanToolLines)

	var lastLine string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lastLine = line

		percent, ok := extractPercent(line)
		if !ok || sink == nil {
			continue
		}
		sink(percent, line)
	}
	return lastLine
}

// extractPercent は行から最初のパーセント値を取り出し、0..100 に丸めます。
func extractPercent(line string) (float64, bool) {
	match := percentPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value, true
}

// scanToolLines は \n に加えて素の \r でも行を区切ります。
// 進捗を同一行に上書き表示するツールへの備えです。
func scanToolLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		// \r\n は1つの区切りとして扱う
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func toolError(name, detail string, cause error) error {
	if detail == "" {
		return fmt.Errorf("%s failed: %w", name, cause)
	}
	return fmt.Errorf("%s failed: %s", name, detail)
}
