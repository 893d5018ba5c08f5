package domain

import (
	"fmt"

	"github.com/malipo/malipo-backend/pkg/errors"
)

// ComputeInput carries everything needed to build one employee's
// payroll detail: the employee record, the resolved variable-pay
// lines, the loan instalment due and the effective statutory rates.
type ComputeInput struct {
	Employee       *Employee
	AllowanceLines PayLines
	DeductionLines PayLines
	LoanDueCents   int64
	Rates          *StatutoryRates
}

// ComputeDetail derives a full payroll detail from the input. It is a
// pure function: no I/O, deterministic for a given input. Statutory
// schemes the employee has opted out of contribute zero and do not
// reduce taxable income; the detail row keeps the explicit zero.
//
// Run and tenant identifiers are stamped by the orchestrator.
func ComputeDetail(in ComputeInput) (*PayrollDetail, error) {
	emp := in.Employee
	if emp.BaseSalaryCents < 0 {
		return nil, errors.Invariant(fmt.Sprintf("employee %s has negative base salary %d", emp.EmployeeNumber, emp.BaseSalaryCents))
	}

	paymentRef, err := emp.PaymentRef()
	if err != nil {
		return nil, err
	}

	var cashAllowances, nonCashBenefits int64
	for _, line := range in.AllowanceLines {
		if line.IsCash {
			cashAllowances += line.AmountCents
		} else {
			nonCashBenefits += line.AmountCents
		}
	}
	gross := emp.BaseSalaryCents + cashAllowances

	var nssf NSSFContribution
	if emp.PaysNSSF {
		nssf, err = CalculateNSSF(emp.BaseSalaryCents, in.Rates.NSSFLowerCeilingCents, in.Rates.NSSFUpperCeilingCents, in.Rates.NSSFRateBp)
		if err != nil {
			return nil, err
		}
	}

	var shif int64
	if emp.PaysSHIF {
		shif, err = CalculateLevy(gross, in.Rates.SHIFRateBp)
		if err != nil {
			return nil, err
		}
	}

	var housingLevy int64
	if emp.PaysHousingLevy {
		housingLevy, err = CalculateLevy(gross, in.Rates.HousingLevyRateBp)
		if err != nil {
			return nil, err
		}
	}

	var loan int64
	if emp.PaysLoanDeduction {
		loan = in.LoanDueCents
	}

	var customDeductions int64
	for _, line := range in.DeductionLines {
		customDeductions += line.AmountCents
	}

	taxable := gross - nssf.Total() - shif - housingLevy - loan - customDeductions
	if taxable < 0 {
		return nil, errors.Invariant(fmt.Sprintf("employee %s: deductions %d exceed gross pay %d", emp.EmployeeNumber, gross-taxable, gross))
	}

	var paye int64
	if emp.PaysPAYE {
		paye, err = CalculatePAYE(taxable, in.Rates.PAYEBands, in.Rates.PersonalReliefCents)
		if err != nil {
			return nil, err
		}
	}

	totalDeductions := nssf.Total() + shif + housingLevy + loan + customDeductions + paye
	net := gross + nonCashBenefits - totalDeductions

	return &PayrollDetail{
		EmployeeID:     emp.ID,
		EmployeeNumber: emp.EmployeeNumber,
		EmployeeName:   emp.FullName(),

		BaseSalaryCents:      emp.BaseSalaryCents,
		CashAllowancesCents:  cashAllowances,
		NonCashBenefitsCents: nonCashBenefits,
		GrossPayCents:        gross,

		TaxableIncomeCents: taxable,
		PAYECents:          paye,

		NSSFTier1Cents:   nssf.Tier1Cents,
		NSSFTier2Cents:   nssf.Tier2Cents,
		NSSFCents:        nssf.Total(),
		SHIFCents:        shif,
		HousingLevyCents: housingLevy,

		LoanDeductionCents:    loan,
		CustomDeductionsCents: customDeductions,
		TotalDeductionsCents:  totalDeductions,
		NetPayCents:           net,

		PaymentMethod: emp.PaymentMethod,
		PaymentRef:    paymentRef,

		AllowanceLines: in.AllowanceLines,
		DeductionLines: in.DeductionLines,
	}, nil
}
