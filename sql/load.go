package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed passages.sql
var passagesSQL string

//go:embed clearances.sql
var clearancesSQL string

//go:embed settings.sql
var settingsSQL string

// Function lists for verification
var PassagesFunctions = []string{
	"init_passages",
	"insert_passage",
	"select_passage",
	"select_passages_by_similarity",
	"select_passages_by_similarity_filtered",
	"update_passage_embedding",
	"delete_passage",
}

var ClearancesFunctions = []string{
	"init_user_clearances",
	"upsert_user_clearance",
	"select_user_clearance",
	"delete_user_clearance",
}

var SettingsFunctions = []string{
	"init_settings",
	"upsert_setting",
	"select_settings_by_category",
	"delete_setting",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadPassagesSql loads passage-related SQL functions
func LoadPassagesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, PassagesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing passages functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(passagesSQL)
	if err != nil {
		return fmt.Errorf("error executing passages SQL: %w", err)
	}

	exist, err := checkFunctions(db, PassagesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL passages functions loaded successfully")
	return nil
}

// LoadClearancesSql loads clearance-related SQL functions
func LoadClearancesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, ClearancesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing clearances functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(clearancesSQL)
	if err != nil {
		return fmt.Errorf("error executing clearances SQL: %w", err)
	}

	exist, err := checkFunctions(db, ClearancesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL clearances functions loaded successfully")
	return nil
}

// LoadSettingsSql loads setting-related SQL functions
func LoadSettingsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, SettingsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing settings functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(settingsSQL)
	if err != nil {
		return fmt.Errorf("error executing settings SQL: %w", err)
	}

	exist, err := checkFunctions(db, SettingsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL settings functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadPassagesSql(db, force); err != nil {
		return err
	}

	if err := LoadClearancesSql(db, force); err != nil {
		return err
	}

	if err := LoadSettingsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
