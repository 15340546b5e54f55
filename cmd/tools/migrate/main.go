package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/thespeedingatom/soviario-app-sub000/internal/database"
)

// migrate applies the embedded schema migrations: migrate [up|down|status].
func main() {
	_ = godotenv.Load()

	dsn := flag.String("dsn", os.Getenv("DB_DSN"), "MySQL DSN (parseTime=true)")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "Error: -dsn not provided and DB_DSN not set")
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	db, err := database.Open(*dsn, database.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch cmd {
	case "up":
		err = database.MigrateUp(sqlDB)
	case "down":
		err = database.MigrateDown(sqlDB)
	case "status":
		err = database.MigrateStatus(sqlDB)
	default:
		err = fmt.Errorf("unknown command %q (want up, down or status)", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
