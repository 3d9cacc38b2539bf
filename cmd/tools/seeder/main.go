package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bookwise-api/internal/discount"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedUsers(db)
	seedBooks(db)
	seedDiscountCodes(db)

	log.Println("Seeding completed successfully!")
}

// seedUsers stores bcrypt hashes; the API upgrades them to argon2id on the
// first successful login.
func seedUsers(db *sql.DB) {
	users := []struct {
		Name  string
		Email string
		Roles []string
	}{
		{"Test User", "user@example.com", []string{"customer"}},
		{"BookWise Admin", "admin@bookwise.pro", []string{"customer", "admin"}},
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), 10)
	if err != nil {
		log.Fatalf("Failed to hash seed password: %v", err)
	}

	fmt.Println("Seeding Users...")
	for _, u := range users {
		_, err := db.Exec(`
			INSERT INTO users (name, email, password_hash, roles)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($2));
		`, u.Name, u.Email, string(hash), pq.Array(u.Roles))
		if err != nil {
			log.Printf("Failed to seed user %s: %v", u.Email, err)
		}
	}
}

func seedBooks(db *sql.DB) {
	books := []struct {
		Title       string
		Author      string
		Category    string
		Price       string
		Rating      string
		Reviews     int
		Stock       bool
		WeightKg    string
		Description string
	}{
		{"Fikir Eske Mekabir", "Haddis Alemayehu", "Romance", "15.50", "4.8", 2500, true, "0.9", "A love story set against the feudal order of Gojjam."},
		{"Dertogada", "Yismake Worku", "Sci-Fi", "18.99", "4.6", 1200, true, "0.6", "A techno-thriller about a hidden Ethiopian scientific project."},
		{"Ke Admas Bashager", "Bealu Girma", "Classic", "12.00", "4.7", 1800, false, "0.5", "An Addis Ababa novel of ambition and disillusionment."},
		{"Oromay", "Bealu Girma", "Classic", "13.50", "4.8", 2100, true, "0.5", "A journalist's account of the Red Star campaign in Asmara."},
		{"Yaliteweledew Leba", "Behailu Demeke", "Drama", "14.99", "4.9", 900, true, "0.4", ""},
		{"Emegua", "Sebhat Gebre-Egziabher", "Romance", "13.25", "4.7", 1400, true, "0.4", ""},
		{"Tewodros Legacy", "Taddese Tiruneh", "Historical", "17.00", "4.6", 950, true, "0.7", "The rise and fall of Emperor Tewodros II at Maqdala."},
		{"The Kebra Nagast", "Traditional", "Historical", "20.00", "4.9", 3000, true, "1.1", "The medieval chronicle of the Solomonic line."},
		{"Lela Sew", "Mihret Debebe", "Drama", "14.25", "4.5", 750, true, "0.4", ""},
		{"Ramatohr", "Yismake Worku", "Sci-Fi", "19.75", "4.7", 950, true, "0.6", ""},
		{"Zegora", "Alemayehu Wase", "Fiction", "13.00", "4.3", 600, true, "", ""},
		{"Beneath the Lion's Gaze", "Maaza Mengiste", "Historical", "16.40", "4.4", 820, true, "0.5", "A family in Addis Ababa during the 1974 revolution."},
	}

	fmt.Println("Seeding Books...")
	for _, b := range books {
		_, err := db.Exec(`
			INSERT INTO books (title, author, category, price, rating, review_count, stock, weight_kg, description)
			SELECT $1, $2, $3, $4::numeric, $5::numeric, $6, $7, NULLIF($8, '')::numeric, NULLIF($9, '')
			WHERE NOT EXISTS (SELECT 1 FROM books WHERE title = $1);
		`, b.Title, b.Author, b.Category, b.Price, b.Rating, b.Reviews, b.Stock, b.WeightKg, b.Description)
		if err != nil {
			log.Printf("Failed to seed book %s: %v", b.Title, err)
		}
	}
}

func seedDiscountCodes(db *sql.DB) {
	fmt.Println("Seeding Discount Codes...")
	for _, c := range discount.SeedCodes() {
		_, err := db.Exec(`
			INSERT INTO discount_codes (code, percentage, min_amount, min_amount_currency, max_uses, uses_left, expires_at, currencies, regions, description)
			VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (code) DO NOTHING;
		`, c.Code, c.Percentage, c.MinAmount.String(), c.MinAmountCurrency, c.MaxUses, c.UsesLeft, c.ExpiresAt,
			pq.Array(c.Currencies), pq.Array(c.Regions), c.Description)
		if err != nil {
			log.Printf("Failed to seed discount code %s: %v", c.Code, err)
		}
	}
}
