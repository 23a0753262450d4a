package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v2"

	"github.com/lmdsp/crashpad/common/database"
)

const (
	AGE   = `older`
	STALE = `stale`
	SHOW  = `show_only`
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Action:  list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  DATABASE,
				Value: "/var/crashpad",
			},
		},
	}
}

func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:    "remove",
		Aliases: []string{"rm"},
		Action:  remove,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  DATABASE,
				Value: "/var/crashpad",
			},
			&cli.StringFlag{
				Name:  AGE,
				Value: "384h", // 16 days
			},
			&cli.BoolFlag{
				Name: STALE,
			},
			&cli.BoolFlag{
				Name: SHOW,
			},
		},
	}
}

func list(c *cli.Context) error {
	db, err := database.NewDisk(c.String(DATABASE))
	if err != nil {
		log.WithError(err).Fatal("Can't open crash report database")
	}

	reports, status := db.GetCompletedReports()
	if status != database.NoError {
		log.WithField("status", status.String()).
			Fatal("Can't list reports")
	}

	for _, report := range reports {
		log.WithFields(log.Fields{
			"id":   report.Id.String(),
			"date": report.CreatedAt.Format(time.RFC3339),
			"size": report.Size,
			"path": report.Path,
		}).Info("Report")
	}

	return nil
}

func remove(c *cli.Context) error {
	db, err := database.NewDisk(c.String(DATABASE))
	if err != nil {
		log.WithError(err).Fatal("Can't open crash report database")
	}

	older, err := time.ParseDuration(c.String(AGE))
	if err != nil {
		log.WithError(err).Fatal("Can't parse 'older' duration")
	}
	cutoff := time.Now().Add(-older)

	if c.Bool(STALE) {
		removed, status := db.RemoveStaleReports(cutoff)
		if status != database.NoError {
			log.WithField("status", status.String()).
				Error("Can't remove stale reports")
		} else {
			log.WithField("count", removed).Info("Removed stale reports")
		}
	}

	reports, status := db.GetCompletedReports()
	if status != database.NoError {
		log.WithField("status", status.String()).
			Fatal("Can't list reports")
	}

	showOnly := c.Bool(SHOW)
	for _, report := range reports {
		if report.CreatedAt.After(cutoff) {
			continue
		}

		if showOnly {
			log.WithFields(log.Fields{
				"id":   report.Id.String(),
				"date": report.CreatedAt.Format(time.RFC3339),
				"size": report.Size,
			}).Info("Report")
			continue
		}

		if status := db.DeleteReport(report.Id); status != database.NoError {
			log.WithFields(log.Fields{
				"status": status.String(),
				"id":     report.Id.String(),
			}).Error("Can't remove report")
			return nil
		}

		log.WithFields(log.Fields{
			"id":   report.Id.String(),
			"date": report.CreatedAt.Format(time.RFC3339),
		}).Info("Removed report")
	}

	return nil
}
