package models

import (
	"github.com/opsfocus/checks_backend/utils"
)

type RedisCleaner interface {
	RemoveInstanceRedis() error // remove one
	RemoveAllRedis() error      // remove list & map if exists
}

// remove both item & list + map
func RemoveRedisBoth[T RedisCleaner](obj T) error {
	if err := obj.RemoveInstanceRedis(); err != nil {
		return err
	}
	if err := obj.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (obj Location) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Location](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Location) RemoveAllRedis() error {
	if err := utils.RemoveRedisList[AllLocation](obj.BusinessId); err != nil {
		return err
	}
	return nil
}

func (obj CheckTemplate) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[CheckTemplate](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj CheckTemplate) RemoveAllRedis() error {
	if err := utils.RemoveRedisList[AllCheckTemplate](obj.BusinessId); err != nil {
		return err
	}
	return nil
}
