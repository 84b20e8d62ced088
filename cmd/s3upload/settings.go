package main

import (
	"github.com/bitrise-io/go-resumable/config"
	"github.com/bitrise-io/go-resumable/resumable/network"
)

const defaultRegion = "us-east-1"

// settings describes the bucket the commands work on.
type settings struct {
	Bucket          string        `env:"S3UPLOAD_BUCKET,required"`
	Region          string        `env:"S3UPLOAD_REGION"`
	Endpoint        string        `env:"S3UPLOAD_ENDPOINT"`
	UsePathStyle    bool          `env:"S3UPLOAD_USE_PATH_STYLE"`
	AccessKeyID     config.Secret `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey config.Secret `env:"AWS_SECRET_ACCESS_KEY"`
}

func loadSettings(envGetter config.EnvGetter) (settings, error) {
	s := settings{Region: defaultRegion}
	if err := config.NewInputParser(envGetter).Parse(&s); err != nil {
		return settings{}, err
	}
	return s, nil
}

func (s settings) s3Params() network.S3Params {
	return network.S3Params{
		Bucket:          s.Bucket,
		Region:          s.Region,
		AccessKeyID:     string(s.AccessKeyID),
		SecretAccessKey: string(s.SecretAccessKey),
		Endpoint:        s.Endpoint,
		UsePathStyle:    s.UsePathStyle,
	}
}
