package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"parcel-api/internal/catalog"
	"parcel-api/internal/logger"
	"parcel-api/internal/pkk"
	"parcel-api/internal/utils"
)

// store 为维护命令所需的快照操作，由 catalog.SQLStore 实现
type store interface {
	Find(ctx context.Context, code string) (*catalog.Snapshot, error)
	Delete(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, limit int) ([]*catalog.Snapshot, error)
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  get <code>")
	fmt.Fprintln(w, "  del <code>")
	fmt.Fprintln(w, "  list [limit]")
	fmt.Fprintln(w, "  help")
	fmt.Fprintln(w, "  exit")
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	s, _ := r.ReadString('\n')
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func summary(s *catalog.Snapshot) string {
	return fmt.Sprintf("%s | type=%d | %dx%d | %s", s.Code, s.AreaType, s.Width, s.Height, s.ImagePath)
}

// runCommand 执行单条命令；返回 false 表示退出
func runCommand(ctx context.Context, st store, line string, w io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	switch strings.ToLower(parts[0]) {
	case "exit", "quit":
		return false
	case "help":
		printHelp(w)
	case "get":
		if len(parts) < 2 {
			fmt.Fprintln(w, "usage: get <code>")
			return true
		}
		code, err := pkk.NormalizeCode(parts[1])
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			return true
		}
		s, err := st.Find(ctx, code)
		switch {
		case err != nil:
			fmt.Fprintln(w, "error:", err)
		case s == nil:
			fmt.Fprintln(w, "none")
		default:
			b, _ := json.MarshalIndent(s, "", "  ")
			fmt.Fprintln(w, string(b))
		}
	case "del":
		if len(parts) < 2 {
			fmt.Fprintln(w, "usage: del <code>")
			return true
		}
		code, err := pkk.NormalizeCode(parts[1])
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			return true
		}
		ok, err := st.Delete(ctx, code)
		switch {
		case err != nil:
			fmt.Fprintln(w, "error:", err)
		case !ok:
			fmt.Fprintln(w, "none")
		default:
			fmt.Fprintln(w, "ok")
		}
	case "list":
		limit := 20
		if len(parts) >= 2 {
			if n, e := strconv.Atoi(parts[1]); e == nil && n > 0 {
				limit = n
			}
		}
		xs, err := st.List(ctx, limit)
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			return true
		}
		for _, s := range xs {
			fmt.Fprintln(w, summary(s))
		}
	default:
		fmt.Fprintln(w, "unknown command")
	}
	return true
}

func main() {
	var envFile string
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--env" && i+1 < len(os.Args) {
			envFile = os.Args[i+1]
			i++
		} else if strings.HasSuffix(os.Args[i], ".env") {
			envFile = os.Args[i]
		}
	}
	l := logger.Discard()
	var st *catalog.SQLStore
	var err error
	if envFile != "" {
		_ = godotenv.Load(envFile)
		driver := strings.ToLower(utils.EnvString("CATALOG_DRIVER", catalog.DriverSQLite))
		if driver == catalog.DriverPostgres {
			db, e := utils.OpenPostgresFromEnv()
			if e != nil {
				fmt.Println("db error:", e)
				os.Exit(1)
			}
			st, err = catalog.AttachSQL(db, catalog.DriverPostgres, l)
		} else {
			st, err = catalog.OpenSQL(catalog.DriverSQLite, utils.EnvString("CATALOG_PATH", "data/catalog.db"), l)
		}
	} else {
		r := bufio.NewReader(os.Stdin)
		fmt.Println("输入快照库连接参数，回车使用默认值")
		driver := prompt(r, "CATALOG_DRIVER", catalog.DriverSQLite)
		if driver == catalog.DriverPostgres {
			host := prompt(r, "PG_HOST", "127.0.0.1")
			port := prompt(r, "PG_PORT", "5432")
			user := prompt(r, "PG_USER", "postgres")
			pass := prompt(r, "PG_PASSWORD", "")
			name := prompt(r, "PG_DB", "parcels")
			ssl := prompt(r, "PG_SSLMODE", "disable")
			dsn := "postgres://" + user
			if pass != "" {
				dsn += ":" + pass
			}
			dsn += "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
			st, err = catalog.OpenSQL(catalog.DriverPostgres, dsn, l)
		} else {
			st, err = catalog.OpenSQL(catalog.DriverSQLite, prompt(r, "CATALOG_PATH", "data/catalog.db"), l)
		}
	}
	if err != nil {
		fmt.Println("db error:", err)
		os.Exit(1)
	}
	defer st.Close()
	fmt.Println("catalog kv cli ready")
	printHelp(os.Stdout)
	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		if !runCommand(ctx, st, strings.TrimSpace(in.Text()), os.Stdout) {
			return
		}
	}
}
