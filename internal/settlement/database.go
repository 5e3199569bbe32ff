package settlement

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// credit adds to an account's balance inside tx, creating the row on first
// touch.
func (d *Database) credit(tx *gorm.DB, account, asset string, amount decimal.Decimal) error {
	balance, err := d.balanceForUpdate(tx, account, asset)
	if err != nil {
		return err
	}
	balance.Available = balance.Available.Add(amount)
	return tx.Save(balance).Error
}

// debit removes from an account's balance inside tx. It fails with
// ErrInsufficientBalance rather than ever letting a balance go negative.
func (d *Database) debit(tx *gorm.DB, account, asset string, amount decimal.Decimal) error {
	balance, err := d.balanceForUpdate(tx, account, asset)
	if err != nil {
		return err
	}
	if balance.Available.LessThan(amount) {
		return ErrInsufficientBalance
	}
	balance.Available = balance.Available.Sub(amount)
	return tx.Save(balance).Error
}

func (d *Database) balanceForUpdate(tx *gorm.DB, account, asset string) (*AccountBalance, error) {
	var balance AccountBalance
	err := tx.Where("account = ? AND asset = ?", account, asset).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = AccountBalance{Account: account, Asset: asset, Available: decimal.Zero}
		if err := tx.Create(&balance).Error; err != nil {
			return nil, err
		}
		return &balance, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// accrueProtocolFee adds to the per-asset protocol fee total inside tx.
func (d *Database) accrueProtocolFee(tx *gorm.DB, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	var accrual ProtocolFeeAccrual
	err := tx.Where("asset = ?", asset).First(&accrual).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		accrual = ProtocolFeeAccrual{Asset: asset, Accrued: amount}
		return tx.Create(&accrual).Error
	}
	if err != nil {
		return err
	}
	accrual.Accrued = accrual.Accrued.Add(amount)
	return tx.Save(&accrual).Error
}

func (d *Database) GetBalance(account, asset string) (decimal.Decimal, error) {
	var balance AccountBalance
	err := d.db.Where("account = ? AND asset = ?", account, asset).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Available, nil
}

func (d *Database) GetBalances(account string) ([]AccountBalance, error) {
	var balances []AccountBalance
	if err := d.db.Where("account = ?", account).Order("asset").Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (d *Database) GetFillSettlement(settlementID string) (*FillSettlement, error) {
	var settlement FillSettlement
	if err := d.db.Where("settlement_id = ?", settlementID).First(&settlement).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

func (d *Database) GetAccountSettlements(account string) ([]FillSettlement, error) {
	var settlements []FillSettlement
	err := d.db.Where("taker = ? OR maker = ?", account, account).
		Order("created_at DESC").
		Find(&settlements).Error
	if err != nil {
		return nil, err
	}
	return settlements, nil
}

func (d *Database) GetPendingSettlements() ([]FillSettlement, error) {
	var settlements []FillSettlement
	if err := d.db.Where("status = ?", StatusPending).Find(&settlements).Error; err != nil {
		return nil, err
	}
	return settlements, nil
}

func (d *Database) UpdateFillSettlement(settlement *FillSettlement) error {
	return d.db.Save(settlement).Error
}

func (d *Database) GetProtocolFees() ([]ProtocolFeeAccrual, error) {
	var accruals []ProtocolFeeAccrual
	if err := d.db.Order("asset").Find(&accruals).Error; err != nil {
		return nil, err
	}
	return accruals, nil
}
