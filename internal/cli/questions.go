package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/postgres"
)

// NewQuestionsCmd manages the Postgres question bank.
func NewQuestionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage the question bank",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Load the built-in question bank into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			loader := postgres.NewQuestionLoader(pool)
			for _, q := range sampleQuestions() {
				if err := loader.SaveQuestion(cmd.Context(), q); err != nil {
					return err
				}
			}
			log.Info().Int("count", len(sampleQuestions())).Msg("question bank seeded")
			return nil
		},
	})
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	setLogLevel(cfg.Log.Level)
	return cfg, nil
}

func question(id, text string, options [4]string, correct int, explanation string) domain.Question {
	ids := [4]domain.OptionID{"a", "b", "c", "d"}
	q := domain.Question{ID: id, Text: text, CorrectOption: ids[correct], Explanation: explanation}
	for i, opt := range options {
		q.Options = append(q.Options, domain.Option{ID: ids[i], Text: opt})
	}
	return q
}

// sampleQuestions is the built-in bank served when no Postgres is configured.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		question("gk-001", "Which planet is closest to the Sun?", [4]string{"Venus", "Mercury", "Mars", "Earth"}, 1, "Mercury orbits at about 0.39 AU."),
		question("gk-002", "How many continents are there?", [4]string{"5", "6", "7", "8"}, 2, "Africa, Antarctica, Asia, Australia, Europe, North America and South America."),
		question("gk-003", "What is the chemical symbol for gold?", [4]string{"Ag", "Gd", "Go", "Au"}, 3, "Au comes from the Latin aurum."),
		question("gk-004", "Which ocean is the largest?", [4]string{"Pacific", "Atlantic", "Indian", "Arctic"}, 0, "The Pacific covers about a third of the Earth's surface."),
		question("gk-005", "What is the boiling point of water at sea level in Celsius?", [4]string{"90", "100", "110", "120"}, 1, "At 1 atm water boils at 100 degrees Celsius."),
		question("gk-006", "Who wrote 'Pride and Prejudice'?", [4]string{"Charlotte Bronte", "Mary Shelley", "Jane Austen", "George Eliot"}, 2, "Jane Austen published it in 1813."),
		question("gk-007", "What is the smallest prime number?", [4]string{"0", "1", "2", "3"}, 2, "2 is the only even prime."),
		question("gk-008", "Which gas do plants absorb for photosynthesis?", [4]string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"}, 2, "Plants fix carbon dioxide into sugars."),
		question("gk-009", "What is the capital of Australia?", [4]string{"Sydney", "Canberra", "Melbourne", "Perth"}, 1, "Canberra was purpose-built as the capital."),
		question("gk-010", "How many sides does a hexagon have?", [4]string{"5", "6", "7", "8"}, 1, "Hex means six."),
		question("gk-011", "Which organ pumps blood through the body?", [4]string{"Liver", "Lungs", "Heart", "Kidney"}, 2, "The heart drives circulation."),
		question("gk-012", "What is the largest mammal?", [4]string{"Elephant", "Blue whale", "Giraffe", "Orca"}, 1, "Blue whales can exceed 30 metres."),
		question("gk-013", "In which year did humans first land on the Moon?", [4]string{"1965", "1969", "1972", "1959"}, 1, "Apollo 11 landed on 20 July 1969."),
		question("gk-014", "What is the hardest natural substance?", [4]string{"Quartz", "Iron", "Diamond", "Granite"}, 2, "Diamond scores 10 on the Mohs scale."),
		question("gk-015", "Which language has the most native speakers?", [4]string{"English", "Spanish", "Hindi", "Mandarin Chinese"}, 3, "Mandarin has close to a billion native speakers."),
		question("gk-016", "What is the freezing point of water in Fahrenheit?", [4]string{"0", "32", "100", "212"}, 1, "Water freezes at 32 degrees Fahrenheit."),
		question("gk-017", "Which element has atomic number 1?", [4]string{"Helium", "Oxygen", "Hydrogen", "Lithium"}, 2, "Hydrogen has a single proton."),
		question("gk-018", "How many minutes are in a day?", [4]string{"1440", "1200", "3600", "720"}, 0, "24 hours times 60 minutes."),
		question("gk-019", "Which country gifted the Statue of Liberty to the USA?", [4]string{"United Kingdom", "Spain", "France", "Italy"}, 2, "France gave it in 1886."),
		question("gk-020", "What is the longest river in South America?", [4]string{"Parana", "Orinoco", "Amazon", "Magdalena"}, 2, "The Amazon is about 6,400 km long."),
		question("gk-021", "How many bits are in a byte?", [4]string{"4", "8", "16", "32"}, 1, "A byte is eight bits on every modern platform."),
		question("gk-022", "Which planet is known as the Red Planet?", [4]string{"Jupiter", "Saturn", "Mars", "Venus"}, 2, "Iron oxide gives Mars its colour."),
		question("gk-023", "What is the square root of 144?", [4]string{"11", "12", "13", "14"}, 1, "12 times 12 is 144."),
		question("gk-024", "Which instrument has 88 keys?", [4]string{"Organ", "Piano", "Harpsichord", "Accordion"}, 1, "A standard piano has 52 white and 36 black keys."),
	}
}
