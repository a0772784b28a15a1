package api

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/pawanM12/deCertify/internal/domain"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// RegisterValidators adds the "wei" and "ethaddr" tags to gin's validator
func RegisterValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		if err := v.RegisterValidation("wei", validateWei); err != nil {
			validatorsErr = err
			return
		}
		validatorsErr = v.RegisterValidation("ethaddr", validateEthAddress)
	})
	return validatorsErr
}

// validateWei accepts unsigned decimal integers that fit a ledger word
func validateWei(fl validator.FieldLevel) bool {
	_, err := domain.ParseAmount(fl.Field().String())
	return err == nil
}

func validateEthAddress(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}
