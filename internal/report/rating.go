// Package report renders the annual credit review reports, either through an external
// command or in process with DuckDB.
package report

// Ratings assigned to a facility.
const (
	RatingNegativeExposure = "Poor Negative Exposure"
	RatingExcellent        = "Lead Gen - Excellent"
	RatingSatisfactory     = "Affinity Gen - Satisfactory"
	RatingPoorCDB          = "Poor Repayment to CDB"
	RatingPoorOtherFIs     = "Poor Repayment to other FIs"
	RatingPoorOverall      = "Poor Overall Repayment"
)

// Grades derived from a rating.
const (
	GradeExcellent    = "Excellent"
	GradeSatisfactory = "Satisfactory"
	GradeAverage      = "Average"
	GradePoor         = "Poor"
)

// Rating classifies a facility from its pre-approved amount, review colour and the number
// of rentals in arrears. Missing numbers are passed as NaN, which matches no rule; a
// facility matching no rule gets "".
func Rating(preApprovedAmt float64, reviewRating string, arrears float64) string {
	if preApprovedAmt < 0 {
		return RatingNegativeExposure
	}
	switch reviewRating {
	case "Green":
		switch {
		case arrears <= 1:
			return RatingExcellent
		case arrears <= 2:
			return RatingSatisfactory
		case arrears > 2:
			return RatingPoorCDB
		}
	case "Yellow":
		switch {
		case arrears <= 2:
			return RatingSatisfactory
		case arrears > 2:
			return RatingPoorCDB
		}
	case "Orange", "Red":
		switch {
		case arrears <= 1:
			return RatingPoorOtherFIs
		case arrears > 1:
			return RatingPoorOverall
		}
	}
	return ""
}

// Grade maps a rating to its grade, or "" for an unrated facility.
func Grade(rating string) string {
	switch rating {
	case RatingSatisfactory:
		return GradeSatisfactory
	case RatingExcellent:
		return GradeExcellent
	case RatingNegativeExposure, RatingPoorCDB, RatingPoorOtherFIs:
		return GradeAverage
	case RatingPoorOverall:
		return GradePoor
	default:
		return ""
	}
}
