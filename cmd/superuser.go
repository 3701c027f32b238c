package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/mosaichq/backoffice/internal/config"
	"github.com/mosaichq/backoffice/internal/services"
)

var (
	superuserName     string
	superuserEmail    string
	superuserPassword string
)

var superuserCmd = &cobra.Command{
	Use:   "superuser",
	Short: "Create a superuser account",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		svcs, err := services.NewServices(conf)
		if err != nil {
			log.Fatalln(err.Error())
		}
		defer svcs.Close()

		u, err := svcs.Users.CreateSuperuser(context.Background(), superuserName, superuserEmail, superuserPassword)
		if err != nil {
			log.Fatalln(err.Error())
		}

		log.Printf("Superuser %s created (%s)", u.Email, u.ID)
	},
}

// Register the "superuser" command
func init() {
	superuserCmd.Flags().StringVar(&superuserName, "name", "", "display name")
	superuserCmd.Flags().StringVar(&superuserEmail, "email", "", "login email")
	superuserCmd.Flags().StringVar(&superuserPassword, "password", "", "initial password")
	_ = superuserCmd.MarkFlagRequired("email")
	_ = superuserCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(superuserCmd)
}
