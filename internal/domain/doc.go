// Package domain models daily temperature-sensor summaries and the monthly
// statistics derived from them.
//
// # Data Source
//
// Sensors upload comma-delimited batches into the raw bucket. Every batch
// carries the header "Fecha,Medias,Desviaciones" followed by one row per day:
//
//	Fecha,Medias,Desviaciones
//	2023/01/10,5.2,0.1
//	2023/1/11,6,0.45
//
// Fecha is the reading date (year/month/day, month and day may be unpadded),
// Medias the daily mean temperature and Desviaciones its standard deviation.
//
// # Validation
//
// Rows are checked in a fixed order and the first failing check names the
// [Reason]: missing field, unparsable date, date in the future, date before
// 2017-01-01, invalid mean, invalid standard deviation. Fields are trimmed
// before any check. Valid rows have their date rewritten as YYYY/MM/DD.
//
// # Datasets
//
// Valid and invalid rows are upserted into two [Dataset] files keyed by the
// first column. Upserts overwrite only the mean and deviation columns of an
// existing row and append unseen keys, so row order is file order followed by
// insertion order, never chronological order.
//
// # Monthly Metrics
//
// [Aggregate] groups valid records by (year, month) and [AddSequentialDiff]
// orders the groups and attaches the change in the monthly maximum relative to
// the previous present month. Exports use the header
// "Ano,Mes,TempMediaMensual,TempMaxMensual,MaxDesviacion,DiferenciaTempMax";
// the first month always carries a 0.0 difference.
package domain
