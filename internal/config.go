package internal

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/classmap/refreshd/internal/util"
)

var Config *Configuration

type DaysDuration time.Duration

func NewDaysDuration(days int64) DaysDuration {
	return DaysDuration(time.Duration(days) * 24 * time.Hour)
}

func (dd DaysDuration) MarshalJSON() ([]byte, error) {
	days := float64(time.Duration(dd)) / float64(24*time.Hour)
	return json.Marshal(days)
}

func (dd *DaysDuration) UnmarshalJSON(data []byte) error {
	var days float64
	if err := json.Unmarshal(data, &days); err != nil {
		return err
	}
	*dd = DaysDuration(days * float64(24*time.Hour))
	return nil
}

type Configuration struct {
	RunRetentionDays DaysDuration `json:"run_retention_days"`
	QueueSize        int64        `json:"queue_size"`
}

func InitializeConfiguration() {
	Config = &Configuration{
		RunRetentionDays: NewDaysDuration(30),
		QueueSize:        1,
	}

	configFileExists, _ := util.PathExists("config.json")
	if !configFileExists {
		b, err := json.MarshalIndent(Config, "", "    ")
		if err != nil {
			log.Fatal(err)
		}
		configFile, err := os.Create("config.json")
		if err != nil {
			log.Fatal(err)
		}
		if _, err := configFile.Write(b); err != nil {
			log.Fatal(err)
		}
	} else {
		configBytes, err := os.ReadFile("config.json")
		if err != nil {
			log.Fatal(err)
		}
		if err := json.Unmarshal(configBytes, &Config); err != nil {
			log.Fatal(err)
		}
	}
}

func UpdateConfiguration(config *Configuration) error {
	b, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}

	configFile, err := os.Create("config.json")
	if err != nil {
		return err
	}

	if _, err := configFile.Write(b); err != nil {
		return err
	}

	Config = config

	return nil
}
