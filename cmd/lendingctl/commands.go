package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/campuslib/lending-engine-go/lending"
)

func newAddBookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-book <title> <author>",
		Short: "Add a book to the catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			book, addErr := cli.engine.AddBook(cmd.Context(), args[0], args[1], flagISBN, flagYear, flagCategory)
			if addErr != nil {
				return addErr
			}

			return printJSON(book)
		},
	}

	cmd.Flags().StringVar(&flagISBN, "isbn", "", "ISBN of the book")
	cmd.Flags().IntVar(&flagYear, "year", 0, "publication year")
	cmd.Flags().StringVar(&flagCategory, "category", "", "category of the book")

	return cmd
}

func newRemoveBookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-book <book-id>",
		Short: "Remove a book from the catalog, keeping its loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, parseErr := parseBookID(args[0])
			if parseErr != nil {
				return parseErr
			}

			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			if removeErr := cli.engine.RemoveBook(cmd.Context(), bookID); removeErr != nil {
				return removeErr
			}

			return printJSON(map[string]any{"removed": bookID})
		},
	}
}

func newShowBookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-book <book-id>",
		Short: "Show one catalog record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, parseErr := parseBookID(args[0])
			if parseErr != nil {
				return parseErr
			}

			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			book, getErr := cli.engine.GetBook(cmd.Context(), bookID)
			if getErr != nil {
				return getErr
			}

			return printJSON(book)
		},
	}
}

func newBorrowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "borrow <book-id> <student-uid>",
		Short: "Borrow a book for a student",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, parseErr := parseBookID(args[0])
			if parseErr != nil {
				return parseErr
			}

			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			dueAt, borrowErr := cli.engine.Borrow(cmd.Context(), bookID, lending.StudentID(args[1]))
			if borrowErr != nil {
				return borrowErr
			}

			return printJSON(map[string]any{"book_id": bookID, "due_at": dueAt})
		},
	}
}

func newReturnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <book-id> <student-uid>",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, parseErr := parseBookID(args[0])
			if parseErr != nil {
				return parseErr
			}

			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			if returnErr := cli.engine.Return(cmd.Context(), bookID, lending.StudentID(args[1])); returnErr != nil {
				return returnErr
			}

			return printJSON(map[string]any{"returned": bookID})
		},
	}
}

func newRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <book-id> <student-uid> <score>",
		Short: "Rate a book on a 1 to 5 scale",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, parseErr := parseBookID(args[0])
			if parseErr != nil {
				return parseErr
			}

			score, scoreErr := strconv.Atoi(args[2])
			if scoreErr != nil {
				return lending.ErrInvalidRating
			}

			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			average, rateErr := cli.engine.Rate(cmd.Context(), bookID, lending.StudentID(args[1]), score)
			if rateErr != nil {
				return rateErr
			}

			return printJSON(map[string]any{"book_id": bookID, "rating": average})
		},
	}
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search the catalog by title, author, category or isbn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			books, searchErr := cli.engine.Search(cmd.Context(), lending.NormalizeSearchField(flagField), args[0])
			if searchErr != nil {
				return searchErr
			}

			return printJSON(books)
		},
	}

	cmd.Flags().StringVar(&flagField, "field", string(lending.SearchByTitle), "field to search (title, author, category, isbn)")

	return cmd
}

func newLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top students by reward points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			students, boardErr := cli.engine.Leaderboard(cmd.Context())
			if boardErr != nil {
				return boardErr
			}

			return printJSON(students)
		},
	}
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <student-uid>",
		Short: "Register a student, or show the existing record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			student, ensureErr := cli.engine.EnsureStudent(cmd.Context(), lending.StudentID(args[0]), flagName)
			if ensureErr != nil {
				return ensureErr
			}

			return printJSON(student)
		},
	}

	cmd.Flags().StringVar(&flagName, "name", "", "display name, defaults to one derived from the UID")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <student-uid>",
		Short: "Show a student's borrowing history, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			loans, historyErr := cli.engine.History(cmd.Context(), lending.StudentID(args[0]))
			if historyErr != nil {
				return historyErr
			}

			return printJSON(loans)
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and roster totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cli.cleanup()

			stats, statsErr := cli.engine.Stats(cmd.Context())
			if statsErr != nil {
				return statsErr
			}

			return printJSON(stats)
		},
	}
}
