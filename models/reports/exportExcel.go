package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/xuri/excelize/v2"
)

// ExportStockReportXLSX renders the mill's stock records as an xlsx workbook.
func ExportStockReportXLSX(ctx context.Context) (*bytes.Buffer, string, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, "", errors.New("mill id is required")
	}

	records, err := models.GetStocksAll(ctx, nil, nil)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Stock"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Stock Type", "Variety", "Current Quantity", "Total Purchased", "Total Sold", "Low Stock Threshold"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, "", err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, "", err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		f.SetRowStyle(sheet, 1, 1, headerStyle)
	}

	for i, record := range records {
		row := i + 2
		values := []interface{}{
			string(record.StockType),
			record.Variety,
			record.CurrentQuantity.InexactFloat64(),
			record.TotalPurchased.InexactFloat64(),
			record.TotalSold.InexactFloat64(),
			record.LowStockThreshold.InexactFloat64(),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, "", err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, "", err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("stock-report-%s.xlsx", time.Now().Format("20060102"))
	return buf, filename, nil
}
