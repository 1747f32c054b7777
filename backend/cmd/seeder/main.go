package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"library_turnover/backend/internal/academicyear"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/gateway/util"
	"library_turnover/backend/internal/shared"
)

const (
	// DefaultAccount is seeded when no account is given on the command line
	DefaultAccount = "escola_demo"
	AccountName    = "Biblioteca Escola Demo"

	StudentsPerClass = 8
)

var (
	levelNames = []string{"1º ano", "2º ano", "3º ano", "4º ano", "5º ano"}
	shifts     = []string{"manhã", "tarde"}
	firstNames = []string{"Ana", "Bruno", "Carla", "Diego", "Eduarda", "Felipe", "Gabriela", "Heitor", "Isabela", "João", "Larissa", "Miguel"}
	lastNames  = []string{"Silva", "Souza", "Oliveira", "Santos", "Pereira", "Costa", "Almeida", "Ribeiro"}
)

// BookSeed is one catalog entry
type BookSeed struct {
	Title    string
	Author   string
	Category string
	Genre    string
}

var bookSeeds = []BookSeed{
	{"Dom Casmurro", "Machado de Assis", "Literatura", "Romance"},
	{"O Pequeno Príncipe", "Antoine de Saint-Exupéry", "Literatura", "Fábula"},
	{"Capitães da Areia", "Jorge Amado", "Literatura", "Romance"},
	{"O Sítio do Picapau Amarelo", "Monteiro Lobato", "Infantil", "Aventura"},
	{"A Bolsa Amarela", "Lygia Bojunga", "Infantil", "Ficção"},
	{"Vidas Secas", "Graciliano Ramos", "Literatura", "Romance"},
	{"Atlas Geográfico Escolar", "IBGE", "Didático", "Geografia"},
	{"Meu Pé de Laranja Lima", "José Mauro de Vasconcelos", "Literatura", "Drama"},
}

func main() {
	log.Println("Starting turnover demo seeder...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := shared.LoadServiceConfig("seeder")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := shared.MustLogger(cfg)
	defer func() { _ = logger.Sync() }()

	account := DefaultAccount
	if len(os.Args) > 1 {
		account = os.Args[1]
	}
	if err := docstore.ValidateAccount(account); err != nil {
		log.Fatalf("Invalid account: %v", err)
	}

	client, db, err := shared.ConnectMongoDB(logger, &cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() { _ = shared.DisconnectMongoDB(client) }()

	store := docstore.NewMongoStore(client, db, logger, cfg.MongoDB.QueryTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Start from an empty account
	if err := store.DropAccount(ctx, account); err != nil {
		log.Fatalf("Failed to clear account %s: %v", account, err)
	}

	now := time.Now().UTC()
	ops, err := seedOps(now)
	if err != nil {
		log.Fatalf("Failed to build seed data: %v", err)
	}
	for start := 0; start < len(ops); start += shared.DefaultBatchSize {
		end := min(start+shared.DefaultBatchSize, len(ops))
		if err := store.Commit(ctx, account, ops[start:end]); err != nil {
			log.Fatalf("Failed to seed batch %d-%d: %v", start, end, err)
		}
	}
	log.Printf("Seeded %d documents into account %s", len(ops), account)

	if cfg.Security.JWTSecret == "" {
		log.Println("JWT_SECRET not set, skipping development token")
		return
	}
	ttl := time.Duration(cfg.Security.JWTExpirationHours) * time.Hour
	token, err := util.IssueToken([]byte(cfg.Security.JWTSecret), account, AccountName, ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Printf("\nDevelopment token for %s (valid %s):\n%s\n", account, ttl, token)
}

// seedOps builds the demo school: one active year, five levels with a morning
// and an afternoon class each, a small catalog and a mix of loans.
func seedOps(now time.Time) ([]docstore.Op, error) {
	year := strconv.Itoa(now.Year())
	rec, err := academicyear.NewYear(year, now)
	if err != nil {
		return nil, err
	}
	ops := []docstore.Op{docstore.CreateOp(docstore.AcademicYears, rec.ID, rec)}

	for i, name := range levelNames {
		l := shared.EducationalLevel{ID: fmt.Sprintf("level-%d", i+1), Name: name, Order: i + 1}
		ops = append(ops, docstore.CreateOp(docstore.EducationalLevels, l.ID, l))
	}

	var bookIDs []string
	for i, b := range bookSeeds {
		book := shared.Book{
			ID:        fmt.Sprintf("book-%02d", i+1),
			Title:     b.Title,
			Author:    b.Author,
			Category:  b.Category,
			Genre:     b.Genre,
			CreatedAt: now,
		}
		bookIDs = append(bookIDs, book.ID)
		ops = append(ops, docstore.CreateOp(docstore.Books, book.ID, book))
	}

	n := 0
	for li := range levelNames {
		levelID := fmt.Sprintf("level-%d", li+1)
		for si, shift := range shifts {
			className := fmt.Sprintf("%d%c", li+1, 'A'+si)
			class := shared.Class{
				ID:                 shared.GenerateClassID(),
				Name:               className,
				Shift:              shift,
				EducationalLevelID: levelID,
				AcademicYear:       year,
				Status:             shared.ClassActive,
				CreatedAt:          now,
			}
			ops = append(ops, docstore.CreateOp(docstore.Classes, class.ID, class))

			for k := 0; k < StudentsPerClass; k++ {
				n++
				s := shared.Student{
					ID:                 fmt.Sprintf("student-%03d", n),
					Name:               firstNames[n%len(firstNames)] + " " + lastNames[(n/len(firstNames)+k)%len(lastNames)],
					Classroom:          className,
					Shift:              shift,
					EducationalLevelID: levelID,
					CreatedAt:          now,
					UpdatedAt:          now,
				}
				ops = append(ops, docstore.CreateOp(docstore.Students, s.ID, s))

				// every third student has a loan; every other loan is still out
				if n%3 != 0 {
					continue
				}
				borrowed := now.AddDate(0, 0, -(n % 40))
				loan := shared.Loan{
					ID:              fmt.Sprintf("loan-%03d", n),
					StudentID:       s.ID,
					BookID:          bookIDs[n%len(bookIDs)],
					BorrowDate:      borrowed,
					DueDate:         borrowed.AddDate(0, 0, 14),
					Status:          shared.LoanActive,
					ReadingProgress: (n * 7) % 100,
				}
				if n%2 == 0 {
					returned := borrowed.AddDate(0, 0, 10)
					loan.Status = shared.LoanReturned
					loan.ReturnDate = &returned
					loan.Completed = true
					loan.ReadingProgress = 100
				}
				ops = append(ops, docstore.CreateOp(docstore.Loans, loan.ID, loan))
			}
		}
	}
	return ops, nil
}
