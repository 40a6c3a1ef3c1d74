// Package classify assigns an incident category to report text.
//
// Two classifiers exist side by side. Bayes is a small multinomial naive
// Bayes model used for operator-entered free text; Rules is an ordered
// keyword table used for structured feed records, which carry a disaster
// type and a reason besides the content. Their confidence values are not
// on the same scale and are not meant to be compared.
package classify
