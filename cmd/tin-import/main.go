// 导入工具：校验三角网数据集文件并写入 PostgreSQL，供服务以 TINSHIFT_SOURCE=db 加载
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	cli "gopkg.in/urfave/cli.v1"

	"tinshift/internal/logger"
	"tinshift/internal/migrate"
	"tinshift/internal/store"
	"tinshift/internal/tinshift"
	"tinshift/internal/utils"
)

func openStore() (*store.Store, error) {
	st, err := store.Open(utils.BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	if err := st.DB().Ping(); err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := migrate.EnsureSchema(st.DB()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// datasetName 文件名去扩展名
func datasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// importFiles：逐个解析后写库；--dry-run 只做校验
func importFiles(c *cli.Context) error {
	files := []string(c.Args())
	if len(files) == 0 {
		return cli.NewExitError(color.RedString("no dataset files given"), 1)
	}
	if c.String("name") != "" && len(files) != 1 {
		return cli.NewExitError(color.RedString("--name requires exactly one file"), 1)
	}
	var st *store.Store
	if !c.Bool("dry-run") {
		var err error
		if st, err = openStore(); err != nil {
			return cli.NewExitError(color.RedString("database: %s", err), 1)
		}
		defer st.Close()
	}
	ctx := context.Background()
	failed := 0
	for _, fp := range files {
		name := c.String("name")
		if name == "" {
			name = datasetName(fp)
		}
		body, err := os.ReadFile(fp)
		if err != nil {
			failed++
			fmt.Fprintln(os.Stderr, color.RedString("%s: %s", fp, err))
			continue
		}
		ds, err := tinshift.ParseJSON(body)
		if err != nil {
			failed++
			fmt.Fprintln(os.Stderr, color.RedString("%s: %s", fp, err))
			continue
		}
		if st != nil {
			if err := st.SaveDataset(ctx, name, ds, body); err != nil {
				failed++
				fmt.Fprintln(os.Stderr, color.RedString("%s: save: %s", fp, err))
				continue
			}
		}
		logger.L().Info("tin_import_ok", "file", fp, "name", name, "triangles", ds.TriangleCount(), "dry_run", st == nil)
		fmt.Println(color.GreenString("ok"), name, fmt.Sprintf("(%d vertices, %d triangles)", ds.VertexCount(), ds.TriangleCount()))
	}
	if failed > 0 {
		return cli.NewExitError(color.RedString("%d of %d file(s) failed", failed, len(files)), 1)
	}
	return nil
}

func list(c *cli.Context) error {
	st, err := openStore()
	if err != nil {
		return cli.NewExitError(color.RedString("database: %s", err), 1)
	}
	defer st.Close()
	rows, err := st.ListDatasets(context.Background())
	if err != nil {
		return cli.NewExitError(color.RedString("list: %s", err), 1)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFORMAT\tINPUT\tOUTPUT\tVERTICES\tTRIANGLES\tLOADED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", r.Name, r.FormatVersion, r.InputCRS, r.OutputCRS, r.VertexCount, r.TriangleCount, r.LoadedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func remove(c *cli.Context) error {
	if len(c.Args()) != 1 {
		return cli.NewExitError(color.RedString("usage: %s delete <name>", c.App.Name), 1)
	}
	st, err := openStore()
	if err != nil {
		return cli.NewExitError(color.RedString("database: %s", err), 1)
	}
	defer st.Close()
	if err := st.DeleteDataset(context.Background(), c.Args().First()); err != nil {
		return cli.NewExitError(color.RedString("delete: %s", err), 1)
	}
	return nil
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	logger.Setup()

	app := cli.NewApp()
	app.Name = "tin-import"
	app.Usage = "manage triangulation datasets stored in PostgreSQL"
	app.Commands = []cli.Command{
		{
			Name:      "import",
			Usage:     "validate dataset files and store them (name = file stem)",
			ArgsUsage: "<file.json>...",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name, n", Usage: "dataset name (single file only)"},
				cli.BoolFlag{Name: "dry-run", Usage: "validate without touching the database"},
			},
			Action: importFiles,
		},
		{
			Name:   "list",
			Usage:  "list stored datasets",
			Action: list,
		},
		{
			Name:      "delete",
			Usage:     "delete a stored dataset",
			ArgsUsage: "<name>",
			Action:    remove,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
