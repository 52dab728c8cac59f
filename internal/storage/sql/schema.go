package sql

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

// Schema 返回指定数据库类型的建表语句（已按分号拆分）
func Schema(driverName string) ([]string, error) {
	if err := checkDriver(driverName); err != nil {
		return nil, err
	}

	content, err := schemaFiles.ReadFile(fmt.Sprintf("schema/%s.sql", driverName))
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return SplitStatements(string(content)), nil
}

// SplitStatements 分割SQL语句（按分号分割，忽略字符串中的分号和注释行）
func SplitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var inString bool
	var stringChar rune

	flush := func() {
		stmt := stripComments(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, r := range sql {
		switch {
		case r == '\'' || r == '"' || r == '`':
			if !inString {
				inString = true
				stringChar = r
			} else if r == stringChar {
				inString = false
			}
			current.WriteRune(r)
		case r == ';' && !inString:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}

// stripComments 去掉整行 "--" 注释
func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func checkDriver(driverName string) error {
	if driverName != "mysql" && driverName != "postgres" {
		return fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}
	return nil
}
